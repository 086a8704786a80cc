package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DeviceToken is one registered push token for a user. Users can have
// several devices, each with its own token.
type DeviceToken struct {
	UserID       string    `dynamodbav:"user_id"`
	Token        string    `dynamodbav:"token"`
	Platform     string    `dynamodbav:"platform"`
	RegisteredAt time.Time `dynamodbav:"registered_at"`
}

// TokenRegistry reads and prunes device push tokens from DynamoDB.
// The table is keyed by user_id (partition) and token (sort).
type TokenRegistry struct {
	dynamoDB  *dynamodb.Client
	tableName string
}

// NewTokenRegistry connects to DynamoDB in the given region.
func NewTokenRegistry(ctx context.Context, tableName, region string) (*TokenRegistry, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &TokenRegistry{
		dynamoDB:  dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

// NewTokenRegistryFromClient wraps an existing DynamoDB client.
func NewTokenRegistryFromClient(client *dynamodb.Client, tableName string) *TokenRegistry {
	return &TokenRegistry{dynamoDB: client, tableName: tableName}
}

// TokensForUser returns every registered token for a user. An empty slice
// means the user has no registered devices and push delivery should be
// suppressed with reason no_push_token.
func (r *TokenRegistry) TokensForUser(ctx context.Context, userID string) ([]DeviceToken, error) {
	result, err := r.dynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying tokens for user: %w", err)
	}

	var tokens []DeviceToken
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &tokens); err != nil {
		return nil, fmt.Errorf("unmarshaling tokens: %w", err)
	}
	return tokens, nil
}

// RegisterToken stores a token for a user. Re-registering the same token
// overwrites the existing item.
func (r *TokenRegistry) RegisterToken(ctx context.Context, token DeviceToken) error {
	if token.RegisteredAt.IsZero() {
		token.RegisteredAt = time.Now().UTC()
	}
	av, err := attributevalue.MarshalMap(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	_, err = r.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting token: %w", err)
	}
	return nil
}

// RemoveToken deletes a token the push provider reported as invalid.
func (r *TokenRegistry) RemoveToken(ctx context.Context, userID, token string) error {
	_, err := r.dynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"token":   &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}
