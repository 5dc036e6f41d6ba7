// Package dynamo keeps image metadata in a DynamoDB table keyed by image_id,
// with a global secondary index on (user_id, upload_date) for listing.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/model"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type Store struct {
	api   API
	table string
	index string
	clock *metadata.Clock
}

var _ metadata.Store = (*Store)(nil)

func NewStore(api API, table, index string, clock *metadata.Clock) *Store {
	if clock == nil {
		clock = metadata.NewClock(nil)
	}
	return &Store{api: api, table: table, index: index, clock: clock}
}

// Ping checks that the table exists and is reachable.
func Ping(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	return err
}

func primaryKey(imageID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		model.KeyImageID: &types.AttributeValueMemberS{Value: imageID},
	}
}

func (s *Store) Save(ctx context.Context, img model.Image) (model.Image, error) {
	s.clock.Stamp(&img)
	item, err := attributevalue.MarshalMap(img)
	if err != nil {
		return model.Image{}, fmt.Errorf("dynamo - Save - attributevalue.MarshalMap: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return model.Image{}, metadata.Unavailable("dynamo - Save - PutItem", err)
	}
	return img, nil
}

func (s *Store) Get(ctx context.Context, imageID string) (model.Image, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            primaryKey(imageID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Image{}, false, metadata.Unavailable("dynamo - Get - GetItem", err)
	}
	if len(out.Item) == 0 {
		return model.Image{}, false, nil
	}

	var img model.Image
	if err := attributevalue.UnmarshalMap(out.Item, &img); err != nil {
		return model.Image{}, false, fmt.Errorf("dynamo - Get - attributevalue.UnmarshalMap: %w", err)
	}
	return img, true, nil
}

func keyCondition(cur metadata.Cursor) expression.KeyConditionBuilder {
	cond := expression.Key(model.KeyUserID).Equal(expression.Value(cur.UserID))
	date := expression.Key(model.KeyUploadDate)
	switch {
	case cur.Start != "" && cur.End != "":
		cond = cond.And(date.Between(expression.Value(cur.Start), expression.Value(cur.End)))
	case cur.Start != "":
		cond = cond.And(date.GreaterThanEqual(expression.Value(cur.Start)))
	case cur.End != "":
		cond = cond.And(date.LessThanEqual(expression.Value(cur.End)))
	}
	return cond
}

func startKey(p model.Position) map[string]types.AttributeValue {
	key := make(map[string]types.AttributeValue, len(p))
	for k, v := range p {
		key[k] = &types.AttributeValueMemberS{Value: v}
	}
	return key
}

// Query reads until it holds one item past the page or the index is
// exhausted. DynamoDB may stop early (1 MB responses) and may hand back a
// LastEvaluatedKey with nothing after it, so its key is never exposed as is.
func (s *Store) Query(ctx context.Context, q metadata.Query) (metadata.Page, error) {
	cur, err := metadata.Prepare(q)
	if err != nil {
		return metadata.Page{}, err
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition(cur)).Build()
	if err != nil {
		return metadata.Page{}, fmt.Errorf("dynamo - Query - expression.Build: %w", err)
	}

	var exclusiveStart map[string]types.AttributeValue
	if cur.After != nil {
		exclusiveStart = startKey(cur.After)
	}

	var items []map[string]types.AttributeValue
	for len(items) <= cur.Limit {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			IndexName:                 aws.String(s.index),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         exclusiveStart,
			ScanIndexForward:          aws.Bool(true),
			Limit:                     aws.Int32(int32(cur.Limit + 1 - len(items))),
		})
		if err != nil {
			return metadata.Page{}, metadata.Unavailable("dynamo - Query", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		exclusiveStart = out.LastEvaluatedKey
	}

	more := len(items) > cur.Limit
	if more {
		items = items[:cur.Limit]
	}

	images := make([]model.Image, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &images); err != nil {
		return metadata.Page{}, fmt.Errorf("dynamo - Query - attributevalue.UnmarshalListOfMaps: %w", err)
	}

	page := metadata.Page{Images: images}
	if more {
		page.NextToken = model.EncodeToken(model.PositionOf(images[len(images)-1]))
	}
	return page, nil
}

func (s *Store) Delete(ctx context.Context, imageID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       primaryKey(imageID),
	})
	if err != nil {
		return metadata.Unavailable("dynamo - Delete - DeleteItem", err)
	}
	return nil
}
