package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tally/pkg/report"
)

// extractRDS lists RDS DB instances.
func (p *Plugin) extractRDS(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row

	paginator := rds.NewDescribeDBInstancesPaginator(p.clients.RDS, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}

		for _, db := range output.DBInstances {
			rows = append(rows, convertRDSInstance(db))
		}
	}

	return rows, nil
}

func convertRDSInstance(db rdstypes.DBInstance) report.Row {
	var endpoint report.Value
	if db.Endpoint != nil {
		endpoint = report.StringPtr(db.Endpoint.Address)
	}
	return report.NewRow(
		report.Col("DB Instance ID", report.StringPtr(db.DBInstanceIdentifier)),
		report.Col("Engine", report.StringPtr(db.Engine)),
		report.Col("Engine Version", report.StringPtr(db.EngineVersion)),
		report.Col("Status", report.StringPtr(db.DBInstanceStatus)),
		report.Col("Instance Class", report.StringPtr(db.DBInstanceClass)),
		report.Col("Endpoint", endpoint),
		report.Col("AZ", report.StringPtr(db.AvailabilityZone)),
		report.Col("Multi AZ", report.BoolPtr(db.MultiAZ)),
		report.Col("Created Time", report.TimePtr(db.InstanceCreateTime)),
	)
}

// extractDynamoDB lists DynamoDB tables and describes each one.
// A table that cannot be described still gets a row with its name.
func (p *Plugin) extractDynamoDB(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var lastKey *string

	for {
		output, err := p.clients.DynamoDB.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: lastKey})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		for _, name := range output.TableNames {
			desc, err := p.clients.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("describe table %s: %w", name, err)
				}
				log.Warn().Err(err).Str("table", name).Msg("Failed to describe DynamoDB table")
				rows = append(rows, report.NewRow(report.Col("Table Name", report.String(name))))
				continue
			}
			rows = append(rows, convertDynamoDBTable(name, desc.Table))
		}

		if aws.ToString(output.LastEvaluatedTableName) == "" {
			break
		}
		lastKey = output.LastEvaluatedTableName
	}

	return rows, nil
}

func convertDynamoDBTable(name string, table *ddbtypes.TableDescription) report.Row {
	if table == nil {
		return report.NewRow(report.Col("Table Name", report.String(name)))
	}
	var billing report.Value
	if table.BillingModeSummary != nil {
		billing = report.Enum(table.BillingModeSummary.BillingMode)
	}
	return report.NewRow(
		report.Col("Table Name", report.String(name)),
		report.Col("Status", report.Enum(table.TableStatus)),
		report.Col("Items", report.Int64Ptr(table.ItemCount)),
		report.Col("Size Bytes", report.Int64Ptr(table.TableSizeBytes)),
		report.Col("Billing Mode", billing),
		report.Col("Created Time", report.TimePtr(table.CreationDateTime)),
	)
}

// extractMemoryDB lists MemoryDB clusters.
func (p *Plugin) extractMemoryDB(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.MemoryDB.DescribeClusters(ctx, &memorydb.DescribeClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe memorydb clusters: %w", err)
		}

		for _, cluster := range output.Clusters {
			rows = append(rows, convertMemoryDBCluster(cluster))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertMemoryDBCluster(cluster memorydbtypes.Cluster) report.Row {
	return report.NewRow(
		report.Col("Cluster Name", report.StringPtr(cluster.Name)),
		report.Col("Status", report.StringPtr(cluster.Status)),
		report.Col("Node Type", report.StringPtr(cluster.NodeType)),
		report.Col("Engine Version", report.StringPtr(cluster.EngineVersion)),
		report.Col("Shards", report.Int32Ptr(cluster.NumberOfShards)),
	)
}

// extractRedshift lists Redshift clusters.
func (p *Plugin) extractRedshift(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var marker *string

	for {
		output, err := p.clients.Redshift.DescribeClusters(ctx, &redshift.DescribeClustersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe redshift clusters: %w", err)
		}

		for _, cluster := range output.Clusters {
			rows = append(rows, convertRedshiftCluster(cluster))
		}

		if aws.ToString(output.Marker) == "" {
			break
		}
		marker = output.Marker
	}

	return rows, nil
}

func convertRedshiftCluster(cluster redshifttypes.Cluster) report.Row {
	return report.NewRow(
		report.Col("Cluster ID", report.StringPtr(cluster.ClusterIdentifier)),
		report.Col("Status", report.StringPtr(cluster.ClusterStatus)),
		report.Col("Node Type", report.StringPtr(cluster.NodeType)),
		report.Col("Nodes", report.Int32Ptr(cluster.NumberOfNodes)),
		report.Col("Database", report.StringPtr(cluster.DBName)),
		report.Col("Created Time", report.TimePtr(cluster.ClusterCreateTime)),
	)
}

// extractS3Buckets lists S3 buckets.
func (p *Plugin) extractS3Buckets(ctx context.Context) ([]report.Row, error) {
	output, err := p.clients.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	rows := make([]report.Row, 0, len(output.Buckets))
	for _, bucket := range output.Buckets {
		rows = append(rows, convertBucket(bucket))
	}
	return rows, nil
}

func convertBucket(bucket s3types.Bucket) report.Row {
	return report.NewRow(
		report.Col("Bucket Name", report.StringPtr(bucket.Name)),
		report.Col("Creation Date", report.TimePtr(bucket.CreationDate)),
	)
}

// extractSQSQueues lists SQS queue URLs.
func (p *Plugin) extractSQSQueues(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.SQS.ListQueues(ctx, &sqs.ListQueuesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}

		for _, queueURL := range output.QueueUrls {
			rows = append(rows, report.NewRow(
				report.Col("Queue Name", report.String(queueName(queueURL))),
				report.Col("Queue URL", report.String(queueURL)),
			))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

// queueName extracts the queue name from an SQS URL.
func queueName(queueURL string) string {
	for i := len(queueURL) - 1; i >= 0; i-- {
		if queueURL[i] == '/' {
			return queueURL[i+1:]
		}
	}
	return queueURL
}

// extractLogGroups lists CloudWatch log groups.
func (p *Plugin) extractLogGroups(ctx context.Context) ([]report.Row, error) {
	var rows []report.Row
	var nextToken *string

	for {
		output, err := p.clients.CloudWatchLogs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe log groups: %w", err)
		}

		for _, lg := range output.LogGroups {
			rows = append(rows, convertLogGroup(lg))
		}

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return rows, nil
}

func convertLogGroup(lg cwltypes.LogGroup) report.Row {
	var created report.Value
	if lg.CreationTime != nil {
		created = report.Time(time.UnixMilli(*lg.CreationTime).UTC())
	}
	return report.NewRow(
		report.Col("Log Group", report.StringPtr(lg.LogGroupName)),
		report.Col("Retention Days", report.Int32Ptr(lg.RetentionInDays)),
		report.Col("Stored Bytes", report.Int64Ptr(lg.StoredBytes)),
		report.Col("Created Time", created),
	)
}
