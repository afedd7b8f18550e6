package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/tally/pkg/report"
)

// extractLoadBalancers lists ELBv2 load balancers.
func (p *Plugin) extractLoadBalancers(ctx context.Context) ([]report.Row, error) {
	lbs, err := p.listLoadBalancers(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]report.Row, 0, len(lbs))
	for _, lb := range lbs {
		rows = append(rows, convertLoadBalancer(lb))
	}
	return rows, nil
}

func (p *Plugin) listLoadBalancers(ctx context.Context) ([]elbtypes.LoadBalancer, error) {
	var lbs []elbtypes.LoadBalancer
	var marker *string

	for {
		output, err := p.clients.ELB.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		lbs = append(lbs, output.LoadBalancers...)

		if aws.ToString(output.NextMarker) == "" {
			break
		}
		marker = output.NextMarker
	}

	return lbs, nil
}

func convertLoadBalancer(lb elbtypes.LoadBalancer) report.Row {
	var state report.Value
	if lb.State != nil {
		state = report.Enum(lb.State.Code)
	}
	return report.NewRow(
		report.Col("Load Balancer Name", report.StringPtr(lb.LoadBalancerName)),
		report.Col("DNS Name", report.StringPtr(lb.DNSName)),
		report.Col("Type", report.Enum(lb.Type)),
		report.Col("State", state),
		report.Col("Scheme", report.Enum(lb.Scheme)),
		report.Col("VPC ID", report.StringPtr(lb.VpcId)),
		report.Col("Created Time", report.TimePtr(lb.CreatedTime)),
	)
}

// extractCloudFront lists CloudFront distributions.
func (p *Plugin) extractCloudFront(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var marker *string

	for {
		output, err := p.clients.CloudFront.ListDistributions(ctx, &cloudfront.ListDistributionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list distributions: %w", err)
		}

		list := output.DistributionList
		if list == nil {
			break
		}
		for _, dist := range list.Items {
			rows = append(rows, convertDistribution(dist))
		}

		if !aws.ToBool(list.IsTruncated) || aws.ToString(list.NextMarker) == "" {
			break
		}
		marker = list.NextMarker
	}

	return rows, nil
}

func convertDistribution(dist cftypes.DistributionSummary) report.Row {
	return report.NewRow(
		report.Col("ID", report.StringPtr(dist.Id)),
		report.Col("Domain Name", report.StringPtr(dist.DomainName)),
		report.Col("Status", report.StringPtr(dist.Status)),
		report.Col("ARN", report.StringPtr(dist.ARN)),
		report.Col("Comment", report.StringPtr(dist.Comment)),
	)
}

// extractCertificates lists ACM certificates.
func (p *Plugin) extractCertificates(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.ACM.ListCertificates(ctx, &acm.ListCertificatesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list certificates: %w", err)
		}

		for _, cert := range output.CertificateSummaryList {
			rows = append(rows, convertCertificate(cert))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertCertificate(cert acmtypes.CertificateSummary) report.Row {
	return report.NewRow(
		report.Col("Domain Name", report.StringPtr(cert.DomainName)),
		report.Col("Certificate ARN", report.StringPtr(cert.CertificateArn)),
		report.Col("Status", report.Enum(cert.Status)),
		report.Col("Type", report.Enum(cert.Type)),
	)
}

// extractRoute53 lists every record set of every hosted zone, one table
// per zone named after the zone.
func (p *Plugin) extractRoute53(ctx context.Context) ([]report.Table, error) {
	var tables []report.Table
	var marker *string

	for {
		output, err := p.clients.Route53.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}

		for _, zone := range output.HostedZones {
			rows, err := p.listRecordSets(ctx, zone)
			if err != nil {
				return nil, err
			}
			tables = append(tables, report.Table{Category: aws.ToString(zone.Name), Rows: rows})
		}

		if !output.IsTruncated || aws.ToString(output.NextMarker) == "" {
			break
		}
		marker = output.NextMarker
	}

	return tables, nil
}

func (p *Plugin) listRecordSets(ctx context.Context, zone r53types.HostedZone) ([]report.Row, error) {
	var rows []report.Row
	zoneID := HostedZoneID(aws.ToString(zone.Id))
	input := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}

	for {
		output, err := p.clients.Route53.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list resource record sets %s: %w", zoneID, err)
		}

		for _, record := range output.ResourceRecordSets {
			rows = append(rows, convertRecordSet(record))
		}

		if !output.IsTruncated {
			break
		}
		input = &route53.ListResourceRecordSetsInput{
			HostedZoneId:          aws.String(zoneID),
			StartRecordName:       output.NextRecordName,
			StartRecordType:       output.NextRecordType,
			StartRecordIdentifier: output.NextRecordIdentifier,
		}
	}

	return rows, nil
}

func convertRecordSet(record r53types.ResourceRecordSet) report.Row {
	ttl := report.String(report.NotApplicable)
	if record.TTL != nil {
		ttl = report.Int64Ptr(record.TTL)
	}
	return report.NewRow(
		report.Col("Name", report.StringPtr(record.Name)),
		report.Col("Type", report.Enum(record.Type)),
		report.Col("TTL", ttl),
		report.Col("Value", recordValue(record)),
	)
}

// recordValue joins record values with ", ". Alias records carry no values.
func recordValue(record r53types.ResourceRecordSet) report.Value {
	if len(record.ResourceRecords) == 0 {
		return report.String("Alias")
	}
	values := make([]string, 0, len(record.ResourceRecords))
	for _, rr := range record.ResourceRecords {
		values = append(values, aws.ToString(rr.Value))
	}
	return report.String(strings.Join(values, ", "))
}

// HostedZoneID strips the "/hostedzone/" prefix Route53 puts on zone IDs.
func HostedZoneID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
