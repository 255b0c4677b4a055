package dynamodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/haydenwoodhead/autointern/data"
)

var _ data.Database = &DynamoDB{}

// Every item lives in one table keyed by pk. The kind attribute tells item types apart
// when they share the user index.
const (
	kindUser         = "user"
	kindSubscription = "subscription"
	kindAccount      = "account"
	kindSend         = "send"
	kindResume       = "resume"
)

// DynamoDB implements the db interface
type DynamoDB struct {
	dynDB           *dynamodb.DynamoDB
	tableName       string
	userIndexName   string
	createOnStartup bool
}

//GetNewDynamoDB gets a new dynamodb database or panics
func GetNewDynamoDB(table string) *DynamoDB {
	awsSession := session.Must(session.NewSession())
	dynDB := dynamodb.New(awsSession)

	return &DynamoDB{
		dynDB:         dynDB,
		tableName:     table,
		userIndexName: "user_id-created_at-index",
	}
}

// Start implements Database Start(). The table is expected to exist unless the db was built for tests.
func (d *DynamoDB) Start() error {
	if d.createOnStartup {
		return d.createDatabase()
	}
	return nil
}

func key(prefix string, id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"pk": {
			S: aws.String(prefix + "#" + id),
		},
	}
}

func isConditionFailed(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func (d *DynamoDB) put(ctx context.Context, prefix string, id string, kind string, v interface{}) error {
	item, err := dynamodbattribute.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %v: %w", kind, err)
	}

	item["pk"] = key(prefix, id)["pk"]
	item["kind"] = &dynamodb.AttributeValue{S: aws.String(kind)}

	_, err = d.dynDB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put %v: %w", kind, err)
	}

	return nil
}

func (d *DynamoDB) get(ctx context.Context, prefix string, id string, out interface{}) error {
	o, err := d.dynDB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key:            key(prefix, id),
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get %v: %w", prefix, err)
	}

	if o.Item == nil {
		return data.ErrNotFound
	}

	err = dynamodbattribute.UnmarshalMap(o.Item, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %v: %w", prefix, err)
	}

	return nil
}

// userQuery selects one kind of item owned by a user from the user index
type userQuery struct {
	userID    string
	kind      string
	since     int64
	// sentChannel limits the query to sent records of one channel
	sentChannel string
	countOnly   bool
}

// queryUserIndex pages through the items matching q, newest first
func (d *DynamoDB) queryUserIndex(ctx context.Context, q userQuery, fn func(*dynamodb.QueryOutput)) error {
	input := &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("user_id = :u AND created_at >= :c"),
		FilterExpression:       aws.String("#K = :k"),
		ExpressionAttributeNames: map[string]*string{
			"#K": aws.String("kind"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":u": {S: aws.String(q.userID)},
			":k": {S: aws.String(q.kind)},
			":c": {N: aws.String(fmt.Sprintf("%d", q.since))},
		},
		IndexName:        aws.String(d.userIndexName),
		TableName:        aws.String(d.tableName),
		ScanIndexForward: aws.Bool(false),
	}

	if q.sentChannel != "" {
		input.FilterExpression = aws.String("#K = :k AND #S = :s AND #C = :ch")
		input.ExpressionAttributeNames["#S"] = aws.String("status")
		input.ExpressionAttributeNames["#C"] = aws.String("channel")
		input.ExpressionAttributeValues[":s"] = &dynamodb.AttributeValue{S: aws.String(data.StatusSent)}
		input.ExpressionAttributeValues[":ch"] = &dynamodb.AttributeValue{S: aws.String(q.sentChannel)}
	}

	if q.countOnly {
		input.Select = aws.String(dynamodb.SelectCount)
	}

	return d.dynDB.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, _ bool) bool {
		fn(page)
		return true
	})
}

// SaveNewUser saves a user
func (d *DynamoDB) SaveNewUser(ctx context.Context, u data.User) error {
	err := d.put(ctx, "USER", u.ID, kindUser, u)
	if err != nil {
		return fmt.Errorf("DynamoDB - SaveNewUser: %w", err)
	}
	return nil
}

// GetUserByID gets a user by id
func (d *DynamoDB) GetUserByID(ctx context.Context, id string) (data.User, error) {
	var u data.User
	err := d.get(ctx, "USER", id, &u)
	if err == data.ErrNotFound {
		return data.User{}, err
	} else if err != nil {
		return data.User{}, fmt.Errorf("DynamoDB - GetUserByID: %w", err)
	}
	return u, nil
}

// UpdateOnboarding replaces the onboarding document of a user
func (d *DynamoDB) UpdateOnboarding(ctx context.Context, userID string, doc string, updatedAt int64) error {
	_, err := d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		ExpressionAttributeNames: map[string]*string{
			"#O": aws.String("onboarding"),
			"#U": aws.String("updated_at"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":o": {S: aws.String(doc)},
			":u": {N: aws.String(fmt.Sprintf("%d", updatedAt))},
		},
		Key:                 key("USER", userID),
		TableName:           aws.String(d.tableName),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET #O = :o, #U = :u"),
	})
	if isConditionFailed(err) {
		return data.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("DynamoDB - failed to update onboarding: %w", err)
	}
	return nil
}

// SaveSubscription inserts or replaces a subscription
func (d *DynamoDB) SaveSubscription(ctx context.Context, s data.Subscription) error {
	err := d.put(ctx, "SUBSCRIPTION", s.UserID, kindSubscription, s)
	if err != nil {
		return fmt.Errorf("DynamoDB - SaveSubscription: %w", err)
	}
	return nil
}

// GetSubscriptionByUserID gets the subscription of a user
func (d *DynamoDB) GetSubscriptionByUserID(ctx context.Context, userID string) (data.Subscription, error) {
	var s data.Subscription
	err := d.get(ctx, "SUBSCRIPTION", userID, &s)
	if err == data.ErrNotFound {
		return data.Subscription{}, err
	} else if err != nil {
		return data.Subscription{}, fmt.Errorf("DynamoDB - GetSubscriptionByUserID: %w", err)
	}
	return s, nil
}

func (d *DynamoDB) accountsForUser(ctx context.Context, userID string) ([]data.MailAccount, error) {
	var accounts []data.MailAccount
	var unmarshalErr error

	err := d.queryUserIndex(ctx, userQuery{userID: userID, kind: kindAccount}, func(page *dynamodb.QueryOutput) {
		var batch []data.MailAccount
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			unmarshalErr = err
			return
		}
		accounts = append(accounts, batch...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts: %w", unmarshalErr)
	}

	return accounts, nil
}

// UpsertMailAccount links a mailbox, replacing the credentials of an existing link
func (d *DynamoDB) UpsertMailAccount(ctx context.Context, a data.MailAccount) (data.MailAccount, error) {
	existing, err := d.accountsForUser(ctx, a.UserID)
	if err != nil {
		return data.MailAccount{}, fmt.Errorf("DynamoDB - UpsertMailAccount: %w", err)
	}

	for _, e := range existing {
		if e.Address != a.Address {
			continue
		}

		_, err = d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			ExpressionAttributeNames: map[string]*string{
				"#A": aws.String("access_token"),
				"#R": aws.String("refresh_token"),
				"#E": aws.String("token_expiry"),
				"#S": aws.String("scopes"),
				"#N": aws.String("needs_reauth"),
				"#U": aws.String("updated_at"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":a": {S: aws.String(a.AccessToken)},
				":r": {S: aws.String(a.RefreshToken)},
				":e": {N: aws.String(fmt.Sprintf("%d", a.TokenExpiry))},
				":s": {S: aws.String(a.Scopes)},
				":n": {BOOL: aws.Bool(false)},
				":u": {N: aws.String(fmt.Sprintf("%d", a.UpdatedAt))},
			},
			Key:              key("MAILACCOUNT", e.ID),
			TableName:        aws.String(d.tableName),
			UpdateExpression: aws.String("SET #A = :a, #R = :r, #E = :e, #S = :s, #N = :n, #U = :u"),
		})
		if err != nil {
			return data.MailAccount{}, fmt.Errorf("DynamoDB - UpsertMailAccount: failed to update account: %w", err)
		}

		return d.GetMailAccountByID(ctx, e.ID)
	}

	a.NeedsReauth = false
	err = d.put(ctx, "MAILACCOUNT", a.ID, kindAccount, a)
	if err != nil {
		return data.MailAccount{}, fmt.Errorf("DynamoDB - UpsertMailAccount: %w", err)
	}

	return a, nil
}

// GetMailAccountByID gets an account by id
func (d *DynamoDB) GetMailAccountByID(ctx context.Context, id string) (data.MailAccount, error) {
	var a data.MailAccount
	err := d.get(ctx, "MAILACCOUNT", id, &a)
	if err == data.ErrNotFound {
		return data.MailAccount{}, err
	} else if err != nil {
		return data.MailAccount{}, fmt.Errorf("DynamoDB - GetMailAccountByID: %w", err)
	}
	return a, nil
}

// GetMailAccountByUserID gets the most recently updated account of a user
func (d *DynamoDB) GetMailAccountByUserID(ctx context.Context, userID string) (data.MailAccount, error) {
	accounts, err := d.accountsForUser(ctx, userID)
	if err != nil {
		return data.MailAccount{}, fmt.Errorf("DynamoDB - GetMailAccountByUserID: %w", err)
	}

	if len(accounts) == 0 {
		return data.MailAccount{}, data.ErrNotFound
	}

	latest := accounts[0]
	for _, a := range accounts[1:] {
		if a.NewerThan(latest) {
			latest = a
		}
	}

	// the index is eventually consistent so read the row itself
	return d.GetMailAccountByID(ctx, latest.ID)
}

// UpdateMailAccountToken stores refreshed credentials
func (d *DynamoDB) UpdateMailAccountToken(ctx context.Context, id string, accessToken string, refreshToken string, expiry int64) error {
	_, err := d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		ExpressionAttributeNames: map[string]*string{
			"#A": aws.String("access_token"),
			"#R": aws.String("refresh_token"),
			"#E": aws.String("token_expiry"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":a": {S: aws.String(accessToken)},
			":r": {S: aws.String(refreshToken)},
			":e": {N: aws.String(fmt.Sprintf("%d", expiry))},
		},
		Key:                 key("MAILACCOUNT", id),
		TableName:           aws.String(d.tableName),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET #A = :a, #R = :r, #E = :e"),
	})
	if isConditionFailed(err) {
		return data.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("DynamoDB - failed to update token: %w", err)
	}
	return nil
}

// SetMailAccountNeedsReauth sets or clears the needs_reauth flag
func (d *DynamoDB) SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	_, err := d.dynDB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		ExpressionAttributeNames: map[string]*string{
			"#N": aws.String("needs_reauth"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":n": {BOOL: aws.Bool(needsReauth)},
		},
		Key:                 key("MAILACCOUNT", id),
		TableName:           aws.String(d.tableName),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET #N = :n"),
	})
	if isConditionFailed(err) {
		return data.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("DynamoDB - failed to set needs_reauth: %w", err)
	}
	return nil
}

// DeleteMailAccount removes an account owned by userID
func (d *DynamoDB) DeleteMailAccount(ctx context.Context, userID string, id string) error {
	_, err := d.dynDB.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":u": {S: aws.String(userID)},
		},
		Key:                 key("MAILACCOUNT", id),
		TableName:           aws.String(d.tableName),
		ConditionExpression: aws.String("user_id = :u"),
	})
	if isConditionFailed(err) {
		return data.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("DynamoDB - failed to delete account: %w", err)
	}
	return nil
}

// SaveSendRecord saves an audit record
func (d *DynamoDB) SaveSendRecord(ctx context.Context, r data.SendRecord) error {
	err := d.put(ctx, "SEND", r.ID, kindSend, r)
	if err != nil {
		return fmt.Errorf("DynamoDB - SaveSendRecord: %w", err)
	}
	return nil
}

// GetSendRecord gets a record owned by userID
func (d *DynamoDB) GetSendRecord(ctx context.Context, userID string, id string) (data.SendRecord, error) {
	var r data.SendRecord
	err := d.get(ctx, "SEND", id, &r)
	if err == data.ErrNotFound {
		return data.SendRecord{}, err
	} else if err != nil {
		return data.SendRecord{}, fmt.Errorf("DynamoDB - GetSendRecord: %w", err)
	}

	if r.UserID != userID {
		return data.SendRecord{}, data.ErrNotFound
	}

	return r, nil
}

// GetSendRecordsByUserID returns all records of a user, newest first
func (d *DynamoDB) GetSendRecordsByUserID(ctx context.Context, userID string) ([]data.SendRecord, error) {
	recs := []data.SendRecord{}
	var unmarshalErr error

	err := d.queryUserIndex(ctx, userQuery{userID: userID, kind: kindSend}, func(page *dynamodb.QueryOutput) {
		var batch []data.SendRecord
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			unmarshalErr = err
			return
		}
		recs = append(recs, batch...)
	})
	if err != nil {
		return nil, fmt.Errorf("DynamoDB - failed to query send records: %w", err)
	}
	if unmarshalErr != nil {
		return nil, fmt.Errorf("DynamoDB - failed to unmarshal send records: %w", unmarshalErr)
	}

	return recs, nil
}

// CountSentSince counts sent records of a user on channel created at or after since
func (d *DynamoDB) CountSentSince(ctx context.Context, userID string, channel string, since int64) (int, error) {
	var count int64

	q := userQuery{userID: userID, kind: kindSend, since: since, sentChannel: channel, countOnly: true}
	err := d.queryUserIndex(ctx, q, func(page *dynamodb.QueryOutput) {
		count += aws.Int64Value(page.Count)
	})
	if err != nil {
		return 0, fmt.Errorf("DynamoDB - failed to count send records: %w", err)
	}

	return int(count), nil
}

// SaveResumeEnhancement saves an enhancement
func (d *DynamoDB) SaveResumeEnhancement(ctx context.Context, e data.ResumeEnhancement) error {
	err := d.put(ctx, "RESUME", e.ID, kindResume, e)
	if err != nil {
		return fmt.Errorf("DynamoDB - SaveResumeEnhancement: %w", err)
	}
	return nil
}

//createDatabase creates a new table for testing
func (d *DynamoDB) createDatabase() error {
	table := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("pk"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("user_id"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("created_at"),
				AttributeType: aws.String("N"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("pk"),
				KeyType:       aws.String("HASH"),
			},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{
			{
				IndexName: aws.String(d.userIndexName),
				KeySchema: []*dynamodb.KeySchemaElement{
					{
						AttributeName: aws.String("user_id"),
						KeyType:       aws.String("HASH"),
					},
					{
						AttributeName: aws.String("created_at"),
						KeyType:       aws.String("RANGE"),
					},
				},
				Projection: &dynamodb.Projection{
					ProjectionType: aws.String(dynamodb.ProjectionTypeAll),
				},
				ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
					ReadCapacityUnits:  aws.Int64(5),
					WriteCapacityUnits: aws.Int64(5),
				},
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
		TableName: aws.String(d.tableName),
	}

	_, err := d.dynDB.CreateTable(table)

	if err != nil {
		if !strings.Contains(err.Error(), dynamodb.ErrCodeResourceInUseException) {
			return err
		}
	}

	return nil
}
