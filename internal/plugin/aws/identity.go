package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/yairfalse/tally/pkg/report"
)

// extractIAMUsers lists IAM users.
func (p *Plugin) extractIAMUsers(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row

	paginator := iam.NewListUsersPaginator(p.clients.IAM, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}

		for _, user := range output.Users {
			rows = append(rows, convertIAMUser(user))
		}
	}

	return rows, nil
}

func convertIAMUser(user iamtypes.User) report.Row {
	return report.NewRow(
		report.Col("User Name", report.StringPtr(user.UserName)),
		report.Col("User ID", report.StringPtr(user.UserId)),
		report.Col("ARN", report.StringPtr(user.Arn)),
		report.Col("Created On", report.TimePtr(user.CreateDate)),
		report.Col("Password Last Used", report.TimePtr(user.PasswordLastUsed)),
	)
}

// extractKMSKeys lists KMS keys.
func (p *Plugin) extractKMSKeys(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var marker *string

	for {
		output, err := p.clients.KMS.ListKeys(ctx, &kms.ListKeysInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}

		for _, key := range output.Keys {
			rows = append(rows, report.NewRow(
				report.Col("Key ID", report.StringPtr(key.KeyId)),
				report.Col("Key ARN", report.StringPtr(key.KeyArn)),
			))
		}

		if !output.Truncated || aws.ToString(output.NextMarker) == "" {
			break
		}
		marker = output.NextMarker
	}

	return rows, nil
}

// extractCloudTrail lists trails visible from the current region.
func (p *Plugin) extractCloudTrail(ctx context.Context) ([]report.Row, error) {
	output, err := p.clients.CloudTrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe trails: %w", err)
	}

	rows := make([]report.Row, 0, len(output.TrailList))
	for _, trail := range output.TrailList {
		rows = append(rows, convertTrail(trail))
	}
	return rows, nil
}

func convertTrail(trail cttypes.Trail) report.Row {
	return report.NewRow(
		report.Col("Trail Name", report.StringPtr(trail.Name)),
		report.Col("Home Region", report.StringPtr(trail.HomeRegion)),
		report.Col("S3 Bucket", report.StringPtr(trail.S3BucketName)),
		report.Col("Multi Region", report.BoolPtr(trail.IsMultiRegionTrail)),
		report.Col("Log Validation", report.BoolPtr(trail.LogFileValidationEnabled)),
	)
}
