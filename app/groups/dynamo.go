package groups

//go:generate mockgen -destination=mocks/mock_dynamo.go -package=mocks -source=dynamo.go DynamoAPI

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoPersister.
type DynamoAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoGroup is one table item, keyed by name.
type dynamoGroup struct {
	Name      string   `dynamodbav:"name"`
	LoginIDs  []string `dynamodbav:"login_ids,omitempty"`
	RangeFrom *int64   `dynamodbav:"range_from,omitempty"`
	RangeTo   *int64   `dynamodbav:"range_to,omitempty"`
	CreatedAt string   `dynamodbav:"created_at"`
	UpdatedAt string   `dynamodbav:"updated_at"`
}

// DynamoPersister stores one item per group in a DynamoDB table.
type DynamoPersister struct {
	client DynamoAPI
	table  string
	logger *slog.Logger
}

// NewDynamoPersister wraps an existing client.
func NewDynamoPersister(client DynamoAPI, table string, logger *slog.Logger) *DynamoPersister {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoPersister{client: client, table: table, logger: logger}
}

// NewDynamoPersisterFromConfig builds a client from the default AWS config chain.
func NewDynamoPersisterFromConfig(ctx context.Context, table string, logger *slog.Logger) (*DynamoPersister, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewDynamoPersister(dynamodb.NewFromConfig(cfg), table, logger), nil
}

// Load scans the whole table.
func (p *DynamoPersister) Load(ctx context.Context) ([]StoredGroup, error) {
	items, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StoredGroup, 0, len(items))
	for _, it := range items {
		sg := StoredGroup{
			Name:      it.Name,
			LoginIDs:  it.LoginIDs,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
		}
		if it.RangeFrom != nil && it.RangeTo != nil {
			sg.Range = &Range{From: *it.RangeFrom, To: *it.RangeTo}
			sg.LoginIDs = []string{}
		}
		out = append(out, sg)
	}
	return out, nil
}

// Save upserts every group and deletes items whose name is gone.
func (p *DynamoPersister) Save(ctx context.Context, groups []StoredGroup) error {
	existing, err := p.scan(ctx)
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(groups))
	for _, sg := range groups {
		keep[sg.Name] = struct{}{}
		item := dynamoGroup{
			Name:      sg.Name,
			CreatedAt: sg.CreatedAt,
			UpdatedAt: sg.UpdatedAt,
		}
		if sg.Range != nil {
			item.RangeFrom = aws.Int64(sg.Range.From)
			item.RangeTo = aws.Int64(sg.Range.To)
		} else {
			item.LoginIDs = sg.LoginIDs
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("marshal group %q: %w", sg.Name, err)
		}
		_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(p.table),
			Item:      av,
		})
		if err != nil {
			p.logger.Error("Failed to put group item",
				"error", err,
				"name", sg.Name,
				"table", p.table,
			)
			return fmt.Errorf("put group %q: %w", sg.Name, err)
		}
	}

	for _, it := range existing {
		if _, ok := keep[it.Name]; ok {
			continue
		}
		_, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(p.table),
			Key: map[string]types.AttributeValue{
				"name": &types.AttributeValueMemberS{Value: it.Name},
			},
		})
		if err != nil {
			p.logger.Error("Failed to delete group item",
				"error", err,
				"name", it.Name,
				"table", p.table,
			)
			return fmt.Errorf("delete group %q: %w", it.Name, err)
		}
	}
	return nil
}

func (p *DynamoPersister) scan(ctx context.Context) ([]dynamoGroup, error) {
	var (
		all              []dynamoGroup
		lastEvaluatedKey map[string]types.AttributeValue
	)
	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(p.table),
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}
		result, err := p.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.table, err)
		}
		var page []dynamoGroup
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal groups: %w", err)
		}
		all = append(all, page...)

		lastEvaluatedKey = result.LastEvaluatedKey
		if len(lastEvaluatedKey) == 0 {
			break
		}
	}
	return all, nil
}
