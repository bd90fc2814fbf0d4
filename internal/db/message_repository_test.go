package db

import (
	"testing"
	"time"

	"sms-relay-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestInsertReceived(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	msg := &models.Message{
		Originator:        "+34600123456",
		Recipient:         "+34911222333",
		Body:              "hola",
		MessageAt:         time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		ProviderMessageID: strPtr("prov-abc123"),
	}

	outcome, err := repo.InsertReceived(msg)
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	assert.Greater(t, outcome.ID, int64(0))
	assert.Equal(t, models.DirectionReceived, msg.Direction)

	stored, err := repo.GetByID(outcome.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hola", stored.Body)
	require.NotNil(t, stored.ProviderMessageID)
	assert.Equal(t, "prov-abc123", *stored.ProviderMessageID)
}

func TestInsertReceivedDuplicate(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	first := &models.Message{
		Originator:        "+34600123456",
		Recipient:         "+34911222333",
		Body:              "hola",
		ProviderMessageID: strPtr("abc123"),
	}
	outcome, err := repo.InsertReceived(first)
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)

	second := &models.Message{
		Originator:        "+34600123456",
		Recipient:         "+34911222333",
		Body:              "hola otra vez",
		ProviderMessageID: strPtr("abc123"),
	}
	outcome2, err := repo.InsertReceived(second)
	require.NoError(t, err)
	assert.True(t, outcome2.Duplicate)

	// Exactly one row stored.
	msgs, err := repo.ListByPhone("34600123456", 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestInsertReceivedNilProviderIDNeverDuplicate(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	for i := 0; i < 3; i++ {
		outcome, err := repo.InsertReceived(&models.Message{
			Originator: "+34600123456",
			Recipient:  "+34911222333",
			Body:       "sin id",
		})
		require.NoError(t, err)
		assert.False(t, outcome.Duplicate)
	}

	msgs, err := repo.ListByPhone("34600123456", 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestInsertSent(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	msg := &models.Message{
		Originator: "EX1234567",
		Recipient:  "+34600123456",
		Body:       "hola",
		SentBy:     strPtr("Alice"),
	}

	id, err := repo.InsertSent(msg)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	stored, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.DirectionSent, stored.Direction)
	require.NotNil(t, stored.SentBy)
	assert.Equal(t, "Alice", *stored.SentBy)
	assert.Nil(t, stored.ProviderMessageID)
}

func TestGetByIDMissing(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	msg, err := repo.GetByID(9999)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestListByPhoneOrdering(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))

	older := &models.Message{
		Originator: "+34600123456",
		Recipient:  "+34911222333",
		Body:       "first",
		MessageAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := &models.Message{
		Originator: "EX1234567",
		Recipient:  "+34600123456",
		Body:       "second",
		MessageAt:  time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	_, err := repo.InsertReceived(older)
	require.NoError(t, err)
	_, err = repo.InsertSent(newer)
	require.NoError(t, err)

	msgs, err := repo.ListByPhone("34600123456", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Body)
	assert.Equal(t, "first", msgs[1].Body)
}
