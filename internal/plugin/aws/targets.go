package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/tally/internal/collector"
	"github.com/yairfalse/tally/pkg/report"
)

const instanceNotFoundCode = "InvalidInstanceID.NotFound"

// instanceDetails is what a target row needs from DescribeInstances.
type instanceDetails struct {
	state     report.Value
	privateIP report.Value
}

// extractTargetInstances walks load balancers, their target groups and
// registered targets. Instance targets are looked up once per run.
func (p *Plugin) extractTargetInstances(ctx context.Context) ([]report.Row, error) {
	lbs, err := p.listLoadBalancers(ctx)
	if err != nil {
		return nil, err
	}

	cache := make(map[string]instanceDetails)
	var rows []report.Row

	for _, lb := range lbs {
		groups, err := p.listTargetGroups(ctx, lb.LoadBalancerArn)
		if err != nil {
			return nil, err
		}

		for _, tg := range groups {
			output, err := p.clients.ELB.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
				TargetGroupArn: tg.TargetGroupArn,
			})
			if err != nil {
				return nil, fmt.Errorf("describe target health %s: %w", aws.ToString(tg.TargetGroupName), err)
			}

			for _, desc := range output.TargetHealthDescriptions {
				row, err := p.targetRow(ctx, cache, lb, tg, desc)
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
			}
		}
	}

	return rows, nil
}

func (p *Plugin) listTargetGroups(ctx context.Context, lbARN *string) ([]elbtypes.TargetGroup, error) {
	var groups []elbtypes.TargetGroup

	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(p.clients.ELB, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		LoadBalancerArn: lbARN,
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe target groups: %w", err)
		}
		groups = append(groups, output.TargetGroups...)
	}

	return groups, nil
}

func (p *Plugin) targetRow(ctx context.Context, cache map[string]instanceDetails, lb elbtypes.LoadBalancer, tg elbtypes.TargetGroup, desc elbtypes.TargetHealthDescription) (report.Row, error) {
	var id string
	var port, health report.Value
	if desc.Target != nil {
		id = aws.ToString(desc.Target.Id)
		port = report.Int32Ptr(desc.Target.Port)
	}
	if desc.TargetHealth != nil {
		health = report.Enum(desc.TargetHealth.State)
	}

	instanceID := report.String(report.NotApplicable)
	state := report.String(report.NotApplicable)
	privateIP := report.String(id)

	if report.ClassifyTarget(id) == report.TargetInstance {
		details, ok := cache[id]
		if !ok {
			var err error
			details, err = p.describeTargetInstance(ctx, id)
			if err != nil {
				return report.Row{}, err
			}
			cache[id] = details
		}
		instanceID = report.String(id)
		state = details.state
		privateIP = details.privateIP
	}

	return report.NewRow(
		report.Col("LoadBalancerName", report.StringPtr(lb.LoadBalancerName)),
		report.Col("TargetGroupName", report.StringPtr(tg.TargetGroupName)),
		report.Col("InstanceID", instanceID),
		report.Col("State", state),
		report.Col("PrivateIP", privateIP),
		report.Col("Port", port),
		report.Col("Health", health),
	), nil
}

// describeTargetInstance resolves one registered instance. A terminated
// instance that is still registered reports State "not-found".
func (p *Plugin) describeTargetInstance(ctx context.Context, id string) (instanceDetails, error) {
	output, err := p.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		if collector.ErrorCode(err) == instanceNotFoundCode {
			return instanceDetails{state: report.String("not-found")}, nil
		}
		return instanceDetails{}, fmt.Errorf("describe instance %s: %w", id, err)
	}

	for _, reservation := range output.Reservations {
		if len(reservation.Instances) == 0 {
			continue
		}
		instance := reservation.Instances[0]
		d := instanceDetails{privateIP: report.StringPtr(instance.PrivateIpAddress)}
		if instance.State != nil {
			d.state = report.Enum(instance.State.Name)
		}
		return d, nil
	}
	return instanceDetails{}, nil
}
