// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/store"
)

// Run exercises s against the store.Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("DocumentLifecycle", func(t *testing.T) {
		doc, err := s.CreateDocument(ctx, store.Document{
			Name:    "lecture.txt",
			Kind:    "txt",
			Text:    "Photosynthesis converts light into chemical energy.",
			Preview: "Photosynthesis converts light...",
		})
		require.NoError(t, err)
		require.NotEmpty(t, doc.ID)
		assert.False(t, doc.CreatedAt.IsZero())

		got, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.Name, got.Name)
		assert.Equal(t, doc.Text, got.Text)
		assert.Empty(t, got.Summary)
		assert.Empty(t, got.Challenge)

		require.NoError(t, s.SetSummary(ctx, doc.ID, "Plants make sugar."))
		score := 8
		pairs := []extract.QAPair{
			{Question: "What converts light?", Answer: "Photosynthesis"},
			{Question: "Into what?", Answer: "Chemical energy", UserAnswer: "sugar",
				Evaluation: &extract.Evaluation{Score: &score, CorrectAnswer: "Chemical energy", Feedback: "Close."}},
		}
		require.NoError(t, s.SetChallenge(ctx, doc.ID, pairs))

		got, err = s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Plants make sugar.", got.Summary)
		require.Len(t, got.Challenge, 2)
		assert.Equal(t, pairs[0], got.Challenge[0])
		require.NotNil(t, got.Challenge[1].Evaluation)
		require.NotNil(t, got.Challenge[1].Evaluation.Score)
		assert.Equal(t, 8, *got.Challenge[1].Evaluation.Score)
		assert.Equal(t, "sugar", got.Challenge[1].UserAnswer)

		require.NoError(t, s.DeleteDocument(ctx, doc.ID))
		_, err = s.GetDocument(ctx, doc.ID)
		assert.True(t, errors.Is(err, store.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("MissingDocument", func(t *testing.T) {
		assert.ErrorIs(t, s.SetSummary(ctx, "missing", "x"), store.ErrNotFound)
		assert.ErrorIs(t, s.SetChallenge(ctx, "missing", nil), store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteDocument(ctx, "missing"), store.ErrNotFound)
		_, err := s.GetDocument(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListDocumentsNewestFirst", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour)
		var ids []string
		for i := 0; i < 3; i++ {
			doc, err := s.CreateDocument(ctx, store.Document{
				Name:      fmt.Sprintf("doc-%d.txt", i),
				Kind:      "txt",
				Text:      "body",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
			ids = append(ids, doc.ID)
		}
		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, ids[2], docs[0].ID)
		assert.Equal(t, ids[0], docs[2].ID)
		for _, d := range docs {
			assert.Empty(t, d.Text)
		}
		for _, id := range ids {
			require.NoError(t, s.DeleteDocument(ctx, id))
		}
	})

	t.Run("Messages", func(t *testing.T) {
		doc, err := s.CreateDocument(ctx, store.Document{Name: "chat.txt", Kind: "txt", Text: "body"})
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			sender := store.SenderUser
			if i%2 == 1 {
				sender = store.SenderAI
			}
			require.NoError(t, s.AppendMessage(ctx, store.Message{
				DocumentID: doc.ID,
				Sender:     sender,
				Text:       fmt.Sprintf("m%d", i),
			}))
		}

		all, err := s.ListMessages(ctx, doc.ID, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, m := range all {
			assert.Equal(t, fmt.Sprintf("m%d", i), m.Text)
			assert.NotEmpty(t, m.ID)
		}
		assert.Equal(t, store.SenderAI, all[1].Sender)

		recent, err := s.ListMessages(ctx, doc.ID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "m3", recent[0].Text)
		assert.Equal(t, "m4", recent[1].Text)

		err = s.AppendMessage(ctx, store.Message{DocumentID: doc.ID, Sender: "robot", Text: "x"})
		assert.Error(t, err)

		require.NoError(t, s.DeleteDocument(ctx, doc.ID))
		left, err := s.ListMessages(ctx, doc.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}
