package data

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFunction is the signature for a testing function
type TestFunction = func(t *testing.T, db Database)

// TestingFuncs contain the suite of funcs that a db implementation should be tested against
var TestingFuncs = []TestFunction{
	TestSaveNewUser,
	TestUpdateOnboarding,
	TestSaveSubscription,
	TestUpsertMailAccount,
	TestGetMailAccountByUserID_Ordering,
	TestUpdateMailAccountToken,
	TestSetMailAccountNeedsReauth,
	TestDeleteMailAccount,
	TestSaveSendRecord,
	TestGetSendRecordsByUserID,
	TestCountSentSince,
	TestSaveResumeEnhancement,
}

func newID() string {
	return uuid.Must(uuid.NewRandom()).String()
}

// TestSaveNewUser verifies that SaveNewUser and GetUserByID work
func TestSaveNewUser(t *testing.T, db Database) {
	ctx := context.Background()
	u := User{
		ID:         newID(),
		Name:       "Hayden",
		Email:      "hayden@example.com",
		Onboarding: "{}",
		CreatedAt:  time.Now().Unix(),
		UpdatedAt:  time.Now().Unix(),
	}

	err := db.SaveNewUser(ctx, u)
	require.NoError(t, err, "%v - TestSaveNewUser: failed to save", reflect.TypeOf(db))

	ru, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err, "%v - TestSaveNewUser: failed to get user back", reflect.TypeOf(db))
	assert.Equal(t, u, ru, "%v - TestSaveNewUser: user not the same after retrieve", reflect.TypeOf(db))

	_, err = db.GetUserByID(ctx, newID())
	assert.Equal(t, ErrNotFound, err, "%v - TestSaveNewUser: expected not found for unknown user", reflect.TypeOf(db))
}

// TestUpdateOnboarding verifies that the onboarding document is replaced
func TestUpdateOnboarding(t *testing.T, db Database) {
	ctx := context.Background()
	u := User{ID: newID(), Name: "Bobby", Email: "bobby@example.com", Onboarding: "{}", CreatedAt: 100, UpdatedAt: 100}
	require.NoError(t, db.SaveNewUser(ctx, u))

	doc := `{"goal":"Internships","careerPath":"Software"}`
	err := db.UpdateOnboarding(ctx, u.ID, doc, 200)
	require.NoError(t, err, "%v - TestUpdateOnboarding: failed to update", reflect.TypeOf(db))

	ru, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, ru.Onboarding)
	assert.Equal(t, int64(200), ru.UpdatedAt)

	err = db.UpdateOnboarding(ctx, newID(), doc, 200)
	assert.Equal(t, ErrNotFound, err, "%v - TestUpdateOnboarding: expected not found for unknown user", reflect.TypeOf(db))
}

// TestSaveSubscription verifies that a subscription is inserted then replaced
func TestSaveSubscription(t *testing.T, db Database) {
	ctx := context.Background()
	userID := newID()

	_, err := db.GetSubscriptionByUserID(ctx, userID)
	assert.Equal(t, ErrNotFound, err, "%v - TestSaveSubscription: expected not found before save", reflect.TypeOf(db))

	s := Subscription{UserID: userID, PlanName: PlanBasic, Status: SubscriptionActive, UpdatedAt: 100}
	require.NoError(t, db.SaveSubscription(ctx, s))

	rs, err := db.GetSubscriptionByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, s, rs)

	s.PlanName = PlanPremium
	s.UpdatedAt = 200
	require.NoError(t, db.SaveSubscription(ctx, s))

	rs, err = db.GetSubscriptionByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, s, rs, "%v - TestSaveSubscription: subscription not replaced", reflect.TypeOf(db))
}

// TestUpsertMailAccount verifies that linking the same mailbox twice keeps one row and clears needs_reauth
func TestUpsertMailAccount(t *testing.T, db Database) {
	ctx := context.Background()
	userID := newID()

	_, err := db.GetMailAccountByUserID(ctx, userID)
	assert.Equal(t, ErrNotFound, err, "%v - TestUpsertMailAccount: expected not found before link", reflect.TypeOf(db))

	a := MailAccount{
		ID:           newID(),
		UserID:       userID,
		Address:      "someone@gmail.com",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenExpiry:  1000,
		Scopes:       "gmail.send",
		CreatedAt:    100,
		UpdatedAt:    100,
	}

	stored, err := db.UpsertMailAccount(ctx, a)
	require.NoError(t, err, "%v - TestUpsertMailAccount: failed first upsert", reflect.TypeOf(db))
	assert.Equal(t, a, stored)

	require.NoError(t, db.SetMailAccountNeedsReauth(ctx, a.ID, true))

	relink := a
	relink.ID = newID()
	relink.AccessToken = "at-2"
	relink.RefreshToken = "rt-2"
	relink.TokenExpiry = 2000
	relink.UpdatedAt = 200

	stored, err = db.UpsertMailAccount(ctx, relink)
	require.NoError(t, err, "%v - TestUpsertMailAccount: failed second upsert", reflect.TypeOf(db))
	assert.Equal(t, a.ID, stored.ID, "%v - TestUpsertMailAccount: relink should keep the original id", reflect.TypeOf(db))

	ra, err := db.GetMailAccountByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, ra.ID)
	assert.Equal(t, "at-2", ra.AccessToken)
	assert.Equal(t, "rt-2", ra.RefreshToken)
	assert.Equal(t, int64(2000), ra.TokenExpiry)
	assert.False(t, ra.NeedsReauth, "%v - TestUpsertMailAccount: relink should clear needs_reauth", reflect.TypeOf(db))

	byID, err := db.GetMailAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ra, byID)
}

// TestGetMailAccountByUserID_Ordering verifies the same account wins every time when timestamps tie
func TestGetMailAccountByUserID_Ordering(t *testing.T, db Database) {
	ctx := context.Background()
	userID := newID()

	accounts := []MailAccount{
		{ID: "acct-a-" + userID, UserID: userID, Address: "a@gmail.com", CreatedAt: 100, UpdatedAt: 300},
		{ID: "acct-b-" + userID, UserID: userID, Address: "b@gmail.com", CreatedAt: 200, UpdatedAt: 300},
		{ID: "acct-c-" + userID, UserID: userID, Address: "c@gmail.com", CreatedAt: 200, UpdatedAt: 300},
		{ID: "acct-d-" + userID, UserID: userID, Address: "d@gmail.com", CreatedAt: 900, UpdatedAt: 250},
	}
	for _, a := range accounts {
		_, err := db.UpsertMailAccount(ctx, a)
		require.NoError(t, err, "%v - TestGetMailAccountByUserID_Ordering: failed to upsert", reflect.TypeOf(db))
	}

	for i := 0; i < 10; i++ {
		got, err := db.GetMailAccountByUserID(ctx, userID)
		require.NoError(t, err, "%v - TestGetMailAccountByUserID_Ordering: failed to get", reflect.TypeOf(db))
		assert.Equal(t, accounts[2].ID, got.ID, "%v - TestGetMailAccountByUserID_Ordering: wrong account", reflect.TypeOf(db))
	}
}

// TestUpdateMailAccountToken verifies targeted token updates
func TestUpdateMailAccountToken(t *testing.T, db Database) {
	ctx := context.Background()
	a := MailAccount{ID: newID(), UserID: newID(), Address: "token@gmail.com", AccessToken: "old", RefreshToken: "rt", TokenExpiry: 10, CreatedAt: 1, UpdatedAt: 1}
	_, err := db.UpsertMailAccount(ctx, a)
	require.NoError(t, err)

	err = db.UpdateMailAccountToken(ctx, a.ID, "new", "rt-rotated", 5000)
	require.NoError(t, err, "%v - TestUpdateMailAccountToken: failed to update", reflect.TypeOf(db))

	ra, err := db.GetMailAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", ra.AccessToken)
	assert.Equal(t, "rt-rotated", ra.RefreshToken)
	assert.Equal(t, int64(5000), ra.TokenExpiry)
	assert.Equal(t, a.Address, ra.Address)

	err = db.UpdateMailAccountToken(ctx, newID(), "new", "rt", 1)
	assert.Equal(t, ErrNotFound, err, "%v - TestUpdateMailAccountToken: expected not found", reflect.TypeOf(db))
}

// TestSetMailAccountNeedsReauth verifies that the flag can be set and cleared
func TestSetMailAccountNeedsReauth(t *testing.T, db Database) {
	ctx := context.Background()
	a := MailAccount{ID: newID(), UserID: newID(), Address: "flag@gmail.com", RefreshToken: "rt", CreatedAt: 1, UpdatedAt: 1}
	_, err := db.UpsertMailAccount(ctx, a)
	require.NoError(t, err)

	require.NoError(t, db.SetMailAccountNeedsReauth(ctx, a.ID, true))
	ra, err := db.GetMailAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ra.NeedsReauth)

	require.NoError(t, db.SetMailAccountNeedsReauth(ctx, a.ID, false))
	ra, err = db.GetMailAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ra.NeedsReauth)
}

// TestDeleteMailAccount verifies that only the owner can delete an account
func TestDeleteMailAccount(t *testing.T, db Database) {
	ctx := context.Background()
	a := MailAccount{ID: newID(), UserID: newID(), Address: "gone@gmail.com", CreatedAt: 1, UpdatedAt: 1}
	_, err := db.UpsertMailAccount(ctx, a)
	require.NoError(t, err)

	err = db.DeleteMailAccount(ctx, newID(), a.ID)
	assert.Equal(t, ErrNotFound, err, "%v - TestDeleteMailAccount: deleted someone else's account", reflect.TypeOf(db))

	require.NoError(t, db.DeleteMailAccount(ctx, a.UserID, a.ID))

	_, err = db.GetMailAccountByUserID(ctx, a.UserID)
	assert.Equal(t, ErrNotFound, err)
}

// TestSaveSendRecord verifies that a record can be saved and only read back by its owner
func TestSaveSendRecord(t *testing.T, db Database) {
	ctx := context.Background()
	r := SendRecord{
		ID:              newID(),
		UserID:          newID(),
		Channel:         ChannelGmail,
		FromAddress:     "me@gmail.com",
		To:              "a@example.com, b@example.com",
		Cc:              "c@example.com",
		Subject:         "Hi",
		BodyText:        "Hello",
		BodyHTML:        "<p>Hello</p>",
		Attachments:     "[]",
		Status:          StatusSent,
		RemoteMessageID: "m1",
		RemoteThreadID:  "t1",
		CreatedAt:       time.Now().Unix(),
		SentAt:          time.Now().Unix(),
	}

	require.NoError(t, db.SaveSendRecord(ctx, r), "%v - TestSaveSendRecord: failed to save", reflect.TypeOf(db))

	rr, err := db.GetSendRecord(ctx, r.UserID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, rr, "%v - TestSaveSendRecord: record not the same after retrieve", reflect.TypeOf(db))

	_, err = db.GetSendRecord(ctx, newID(), r.ID)
	assert.Equal(t, ErrNotFound, err, "%v - TestSaveSendRecord: record visible to another user", reflect.TypeOf(db))
}

// TestGetSendRecordsByUserID verifies that history is returned newest first
func TestGetSendRecordsByUserID(t *testing.T, db Database) {
	ctx := context.Background()
	userID := newID()

	for i, created := range []int64{100, 300, 200} {
		r := SendRecord{
			ID:        newID(),
			UserID:    userID,
			Channel:   ChannelGmail,
			To:        "a@example.com",
			Subject:   string(rune('a' + i)),
			Status:    StatusSent,
			CreatedAt: created,
		}
		require.NoError(t, db.SaveSendRecord(ctx, r))
	}

	recs, err := db.GetSendRecordsByUserID(ctx, userID)
	require.NoError(t, err, "%v - TestGetSendRecordsByUserID: failed to list", reflect.TypeOf(db))
	require.Len(t, recs, 3)
	assert.Equal(t, int64(300), recs[0].CreatedAt)
	assert.Equal(t, int64(200), recs[1].CreatedAt)
	assert.Equal(t, int64(100), recs[2].CreatedAt)

	recs, err = db.GetSendRecordsByUserID(ctx, newID())
	require.NoError(t, err)
	assert.Len(t, recs, 0)
}

// TestCountSentSince verifies that only sent records of the channel inside the window are counted
func TestCountSentSince(t *testing.T, db Database) {
	ctx := context.Background()
	userID := newID()

	recs := []SendRecord{
		{ID: newID(), UserID: userID, Channel: ChannelPlatform, Status: StatusSent, CreatedAt: 50},
		{ID: newID(), UserID: userID, Channel: ChannelPlatform, Status: StatusSent, CreatedAt: 100},
		{ID: newID(), UserID: userID, Channel: ChannelPlatform, Status: StatusSent, CreatedAt: 150},
		{ID: newID(), UserID: userID, Channel: ChannelPlatform, Status: StatusFailed, CreatedAt: 150},
		{ID: newID(), UserID: userID, Channel: ChannelGmail, Status: StatusSent, CreatedAt: 120},
		{ID: newID(), UserID: userID, Channel: ChannelGmail, Status: StatusSent, CreatedAt: 160},
		{ID: newID(), UserID: newID(), Channel: ChannelPlatform, Status: StatusSent, CreatedAt: 150},
	}
	for _, r := range recs {
		require.NoError(t, db.SaveSendRecord(ctx, r))
	}

	count, err := db.CountSentSince(ctx, userID, ChannelPlatform, 100)
	require.NoError(t, err, "%v - TestCountSentSince: failed to count", reflect.TypeOf(db))
	assert.Equal(t, 2, count, "%v - TestCountSentSince: gmail sends must not count towards the platform", reflect.TypeOf(db))

	count, err = db.CountSentSince(ctx, userID, ChannelGmail, 100)
	require.NoError(t, err, "%v - TestCountSentSince: failed to count", reflect.TypeOf(db))
	assert.Equal(t, 2, count, "%v - TestCountSentSince: wrong gmail count", reflect.TypeOf(db))
}

// TestSaveResumeEnhancement verifies that an enhancement can be saved
func TestSaveResumeEnhancement(t *testing.T, db Database) {
	e := ResumeEnhancement{
		ID:             newID(),
		UserID:         newID(),
		OriginalResume: "resume",
		EnhancedResume: "better resume",
		Answers:        `{"target-role":"SWE"}`,
		CreatedAt:      time.Now().Unix(),
	}

	err := db.SaveResumeEnhancement(context.Background(), e)
	assert.NoError(t, err, "%v - TestSaveResumeEnhancement: failed to save", reflect.TypeOf(db))
}
