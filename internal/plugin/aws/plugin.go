// Package aws extracts AWS resource inventories, one category per service view.
package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tally/internal/collector"
)

// UnknownAccount is reported when STS cannot identify the caller.
const UnknownAccount = "unknown"

// Clients holds one client per AWS service. Tests substitute any of them.
type Clients struct {
	EC2            EC2API
	ELB            ELBAPI
	AutoScaling    AutoScalingAPI
	RDS            RDSAPI
	DynamoDB       DynamoDBAPI
	MemoryDB       MemoryDBAPI
	Redshift       RedshiftAPI
	IAM            IAMAPI
	KMS            KMSAPI
	CloudTrail     CloudTrailAPI
	ECS            ECSAPI
	EKS            EKSAPI
	ECR            ECRAPI
	Lambda         LambdaAPI
	SQS            SQSAPI
	S3             S3API
	CloudFront     CloudFrontAPI
	ACM            ACMAPI
	Route53        Route53API
	CloudWatchLogs CloudWatchLogsAPI
	STS            STSAPI
}

// NewClients builds every service client from one SDK config.
func NewClients(awsCfg aws.Config) Clients {
	return Clients{
		EC2:            ec2.NewFromConfig(awsCfg),
		ELB:            elasticloadbalancingv2.NewFromConfig(awsCfg),
		AutoScaling:    autoscaling.NewFromConfig(awsCfg),
		RDS:            rds.NewFromConfig(awsCfg),
		DynamoDB:       dynamodb.NewFromConfig(awsCfg),
		MemoryDB:       memorydb.NewFromConfig(awsCfg),
		Redshift:       redshift.NewFromConfig(awsCfg),
		IAM:            iam.NewFromConfig(awsCfg),
		KMS:            kms.NewFromConfig(awsCfg),
		CloudTrail:     cloudtrail.NewFromConfig(awsCfg),
		ECS:            ecs.NewFromConfig(awsCfg),
		EKS:            eks.NewFromConfig(awsCfg),
		ECR:            ecr.NewFromConfig(awsCfg),
		Lambda:         lambda.NewFromConfig(awsCfg),
		SQS:            sqs.NewFromConfig(awsCfg),
		S3:             s3.NewFromConfig(awsCfg),
		CloudFront:     cloudfront.NewFromConfig(awsCfg),
		ACM:            acm.NewFromConfig(awsCfg),
		Route53:        route53.NewFromConfig(awsCfg),
		CloudWatchLogs: cloudwatchlogs.NewFromConfig(awsCfg),
		STS:            sts.NewFromConfig(awsCfg),
	}
}

// Plugin extracts AWS categories for one account and region.
type Plugin struct {
	region    string
	accountID string
	clients   Clients
}

// Config holds AWS plugin configuration. Empty fields defer to the SDK
// default chain.
type Config struct {
	Region  string
	Profile string
}

// New loads the SDK default configuration, verifies that credentials
// resolve, and identifies the account.
func New(ctx context.Context, cfg Config) (*Plugin, error) {
	if err := CheckEnvCredentials(os.Getenv); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, classifyConfigError(err)
	}

	if err := CheckCredentials(ctx, awsCfg.Credentials); err != nil {
		return nil, err
	}

	p := NewWithClients(awsCfg.Region, NewClients(awsCfg))
	p.accountID = lookupAccountID(ctx, p.clients.STS)
	return p, nil
}

// NewWithClients builds a plugin over existing clients. The account is
// left unknown.
func NewWithClients(region string, clients Clients) *Plugin {
	return &Plugin{
		region:    region,
		accountID: UnknownAccount,
		clients:   clients,
	}
}

func lookupAccountID(ctx context.Context, client STSAPI) string {
	if client == nil {
		return UnknownAccount
	}
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		log.Warn().Err(err).Msg("Could not identify AWS account")
		return UnknownAccount
	}
	if id := aws.ToString(out.Account); id != "" {
		return id
	}
	return UnknownAccount
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "aws"
}

// Region returns the region the clients were built for.
func (p *Plugin) Region() string {
	return p.region
}

// Account returns the caller's account ID, or UnknownAccount.
func (p *Plugin) Account() string {
	return p.accountID
}

// Categories returns every category in default report order.
func (p *Plugin) Categories() []collector.Category {
	return []collector.Category{
		{Name: "EC2", Extract: p.extractEC2},
		{Name: "SECURITY GROUP", Extract: p.extractSecurityGroups},
		{Name: "ALB", Extract: p.extractLoadBalancers},
		{Name: "TARGET INSTANCES", Extract: p.extractTargetInstances},
		{Name: "AUTOSCALING", Extract: p.extractAutoScalingGroups},
		{Name: "RDS", Extract: p.extractRDS},
		{Name: "DYNAMODB", Extract: p.extractDynamoDB},
		{Name: "MEMORYDB", Extract: p.extractMemoryDB},
		{Name: "REDSHIFT", Extract: p.extractRedshift},
		{Name: "IAM USER", Extract: p.extractIAMUsers},
		{Name: "KMS", Extract: p.extractKMSKeys},
		{Name: "CLOUDTRAIL", Extract: p.extractCloudTrail},
		{Name: "ECS", Extract: p.extractECSClusters},
		{Name: "EKS", Extract: p.extractEKSClusters},
		{Name: "ECR", Extract: p.extractECRRepositories},
		{Name: "LAMBDA", Extract: p.extractLambdaFunctions},
		{Name: "SQS", Extract: p.extractSQSQueues},
		{Name: "S3", Extract: p.extractS3Buckets},
		{Name: "CLOUDFRONT", Extract: p.extractCloudFront},
		{Name: "ACM", Extract: p.extractCertificates},
		{Name: "ROUTE53", Tables: p.extractRoute53},
		{Name: "CLOUDWATCH LOGS", Extract: p.extractLogGroups},
	}
}

// Register adds every category to the registry in default order.
func (p *Plugin) Register(reg *collector.Registry) error {
	for _, c := range p.Categories() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
