package jwt

import (
	"context"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *models.User {
	return &models.User{ID: "u-1", Username: "dr.house", HospitalID: "st-mary", Role: models.RoleDoctor}
}

func TestManager_IssueValidate(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	token, expiresIn, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "dr.house", claims.Username)
	assert.Equal(t, "st-mary", claims.HospitalID)
	assert.Equal(t, models.RoleDoctor, claims.Role)
}

func TestManager_ValidateRejects(t *testing.T) {
	m := NewManager(testSecret, time.Hour)
	valid, _, err := m.Issue(testUser())
	require.NoError(t, err)

	expired := NewManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, err := expired.Issue(testUser())
	require.NoError(t, err)

	otherSecret, _, err := NewManager("another-secret-another-secret-xx", time.Hour).Issue(testUser())
	require.NoError(t, err)

	noScope := testUser()
	noScope.HospitalID = ""
	noScopeToken, _, err := m.Issue(noScope)
	require.NoError(t, err)

	none, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		UserID:     "u-1",
		HospitalID: "st-mary",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.token"},
		{name: "tampered", token: valid + "x"},
		{name: "expired", token: expiredToken},
		{name: "wrong secret", token: otherSecret},
		{name: "no hospital", token: noScopeToken},
		{name: "alg none", token: none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: "u-1"})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", c.UserID)
}
