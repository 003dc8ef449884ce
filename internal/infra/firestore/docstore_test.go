package firestore

import (
	"testing"

	"cloud.google.com/go/firestore"
	"festival-mileage/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToFirestoreMapsTransforms(t *testing.T) {
	out := toFirestore(docstore.Data{
		"baseMileage": docstore.Inc(100),
		"updatedAt":   docstore.ServerTimestamp,
		"name":        "Kim",
		"quiz":        docstore.Data{"answeredAt": docstore.ServerTimestamp},
	})

	assert.Equal(t, firestore.Increment(100.0), out["baseMileage"])
	assert.Equal(t, firestore.ServerTimestamp, out["updatedAt"])
	assert.Equal(t, "Kim", out["name"])
	nested, ok := out["quiz"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, firestore.ServerTimestamp, nested["answeredAt"])
}

func TestFromSnapshotTreatsNotFoundAsMissing(t *testing.T) {
	snap, err := fromSnapshot("users/u1", nil, status.Error(codes.NotFound, "missing"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "u1", snap.ID)

	_, err = fromSnapshot("users/u1", nil, status.Error(codes.Unavailable, "down"))
	assert.Error(t, err)
}

func TestMapErrorAlreadyExists(t *testing.T) {
	err := mapError(status.Error(codes.AlreadyExists, "exists"))
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	assert.NoError(t, mapError(nil))
}
