package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tally/pkg/report"
)

// extractEC2 lists EC2 instances.
func (p *Plugin) extractEC2(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row

	paginator := ec2.NewDescribeInstancesPaginator(p.clients.EC2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				rows = append(rows, convertEC2Instance(instance))
			}
		}
	}

	return rows, nil
}

func convertEC2Instance(instance ec2types.Instance) report.Row {
	var state, az report.Value
	if instance.State != nil {
		state = report.Enum(instance.State.Name)
	}
	if instance.Placement != nil {
		az = report.StringPtr(instance.Placement.AvailabilityZone)
	}
	return report.NewRow(
		report.Col("Instance ID", report.StringPtr(instance.InstanceId)),
		report.Col("Name", nameTag(instance.Tags)),
		report.Col("State", state),
		report.Col("Type", report.Enum(instance.InstanceType)),
		report.Col("AZ", az),
		report.Col("Public IP", report.StringPtr(instance.PublicIpAddress)),
		report.Col("Private IP", report.StringPtr(instance.PrivateIpAddress)),
		report.Col("Launch Time", report.TimePtr(instance.LaunchTime)),
	)
}

// extractSecurityGroups lists security groups with their rules flattened.
func (p *Plugin) extractSecurityGroups(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe security groups: %w", err)
		}

		for _, sg := range output.SecurityGroups {
			rows = append(rows, convertSecurityGroup(sg))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertSecurityGroup(sg ec2types.SecurityGroup) report.Row {
	return report.NewRow(
		report.Col("Group ID", report.StringPtr(sg.GroupId)),
		report.Col("Group Name", report.StringPtr(sg.GroupName)),
		report.Col("Description", report.StringPtr(sg.Description)),
		report.Col("VPC ID", report.StringPtr(sg.VpcId)),
		report.Col("Inbound Rules", formatPermissions(sg.IpPermissions)),
		report.Col("Outbound Rules", formatPermissions(sg.IpPermissionsEgress)),
	)
}

// formatPermissions renders rules as "proto ports <- sources" joined by "; ".
func formatPermissions(perms []ec2types.IpPermission) report.Value {
	if len(perms) == 0 {
		return report.Absent()
	}
	rules := make([]string, 0, len(perms))
	for _, perm := range perms {
		var sources []string
		for _, r := range perm.IpRanges {
			sources = append(sources, aws.ToString(r.CidrIp))
		}
		for _, r := range perm.Ipv6Ranges {
			sources = append(sources, aws.ToString(r.CidrIpv6))
		}
		for _, pair := range perm.UserIdGroupPairs {
			sources = append(sources, aws.ToString(pair.GroupId))
		}
		for _, pl := range perm.PrefixListIds {
			sources = append(sources, aws.ToString(pl.PrefixListId))
		}
		rule := protocolName(aws.ToString(perm.IpProtocol)) + " " + portRange(perm.FromPort, perm.ToPort)
		if len(sources) > 0 {
			rule += " <- " + strings.Join(sources, ",")
		}
		rules = append(rules, rule)
	}
	return report.String(strings.Join(rules, "; "))
}

func protocolName(proto string) string {
	switch proto {
	case "-1", "":
		return "all"
	default:
		return proto
	}
}

func portRange(from, to *int32) string {
	if from == nil && to == nil {
		return "all"
	}
	f, t := aws.ToInt32(from), aws.ToInt32(to)
	if f == -1 || (f == 0 && t == 65535) {
		return "all"
	}
	if f == t {
		return strconv.Itoa(int(f))
	}
	return fmt.Sprintf("%d-%d", f, t)
}

// nameTag returns the Name tag value, absent when untagged.
func nameTag(tags []ec2types.Tag) report.Value {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return report.StringPtr(tag.Value)
		}
	}
	return report.Absent()
}

// extractAutoScalingGroups lists Auto Scaling groups.
func (p *Plugin) extractAutoScalingGroups(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.AutoScaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe auto scaling groups: %w", err)
		}

		for _, asg := range output.AutoScalingGroups {
			rows = append(rows, convertASG(asg))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertASG(asg asgtypes.AutoScalingGroup) report.Row {
	return report.NewRow(
		report.Col("Group Name", report.StringPtr(asg.AutoScalingGroupName)),
		report.Col("Min", report.Int32Ptr(asg.MinSize)),
		report.Col("Max", report.Int32Ptr(asg.MaxSize)),
		report.Col("Desired", report.Int32Ptr(asg.DesiredCapacity)),
		report.Col("Instances", report.Int(int64(len(asg.Instances)))),
		report.Col("Created Time", report.TimePtr(asg.CreatedTime)),
	)
}

// extractLambdaFunctions lists Lambda functions.
func (p *Plugin) extractLambdaFunctions(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var marker *string

	for {
		output, err := p.clients.Lambda.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			rows = append(rows, convertLambda(fn))
		}

		if aws.ToString(output.NextMarker) == "" {
			break
		}
		marker = output.NextMarker
	}

	return rows, nil
}

func convertLambda(fn lambdatypes.FunctionConfiguration) report.Row {
	return report.NewRow(
		report.Col("Function Name", report.StringPtr(fn.FunctionName)),
		report.Col("Runtime", report.Enum(fn.Runtime)),
		report.Col("Memory MB", report.Int32Ptr(fn.MemorySize)),
		report.Col("Timeout Sec", report.Int32Ptr(fn.Timeout)),
		report.Col("Last Modified", report.StringPtr(fn.LastModified)),
	)
}

// extractECSClusters lists ECS cluster ARNs.
func (p *Plugin) extractECSClusters(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.ECS.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list clusters: %w", err)
		}

		for _, arn := range output.ClusterArns {
			rows = append(rows, report.NewRow(report.Col("Cluster ARN", report.String(arn))))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

// extractEKSClusters lists EKS clusters and describes each one.
// A cluster that cannot be described still gets a row with its name.
func (p *Plugin) extractEKSClusters(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		listOutput, err := p.clients.EKS.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list clusters: %w", err)
		}

		for _, name := range listOutput.Clusters {
			descOutput, err := p.clients.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("describe cluster %s: %w", name, err)
				}
				log.Warn().Err(err).Str("cluster", name).Msg("Failed to describe EKS cluster")
				rows = append(rows, report.NewRow(report.Col("Cluster Name", report.String(name))))
				continue
			}
			rows = append(rows, convertEKSCluster(name, descOutput.Cluster))
		}

		if aws.ToString(listOutput.NextToken) == "" {
			break
		}
		nextToken = listOutput.NextToken
	}

	return rows, nil
}

func convertEKSCluster(name string, cluster *ekstypes.Cluster) report.Row {
	if cluster == nil {
		return report.NewRow(report.Col("Cluster Name", report.String(name)))
	}
	return report.NewRow(
		report.Col("Cluster Name", report.String(name)),
		report.Col("Status", report.Enum(cluster.Status)),
		report.Col("Version", report.StringPtr(cluster.Version)),
		report.Col("Endpoint", report.StringPtr(cluster.Endpoint)),
		report.Col("Created Time", report.TimePtr(cluster.CreatedAt)),
	)
}

// extractECRRepositories lists ECR repositories.
func (p *Plugin) extractECRRepositories(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe repositories: %w", err)
		}

		for _, repo := range output.Repositories {
			rows = append(rows, convertECRRepository(repo))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertECRRepository(repo ecrtypes.Repository) report.Row {
	return report.NewRow(
		report.Col("Repository Name", report.StringPtr(repo.RepositoryName)),
		report.Col("URI", report.StringPtr(repo.RepositoryUri)),
		report.Col("Tag Mutability", report.Enum(repo.ImageTagMutability)),
		report.Col("Created Time", report.TimePtr(repo.CreatedAt)),
	)
}
