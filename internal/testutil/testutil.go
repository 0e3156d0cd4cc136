// Package testutil provides test helpers for mudex tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, MakeSet)
//   - maildir.go: throwaway maildir trees (NewMaildir, Deliver)
//   - messages.go: model.Message builders (NewMsg)
//   - email: raw MIME message builder
package testutil
