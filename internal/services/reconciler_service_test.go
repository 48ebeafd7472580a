// internal/services/reconciler_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/hedera"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

func TestMilestoneFamilyIDs(t *testing.T) {
	parent := &models.Milestone{BaseModel: models.BaseModel{ID: uuid.New()}}
	assert.Equal(t, []uuid.UUID{parent.ID}, milestoneFamilyIDs(parent))

	childA := models.Milestone{BaseModel: models.BaseModel{ID: uuid.New()}}
	childB := models.Milestone{BaseModel: models.BaseModel{ID: uuid.New()}}
	parent.Children = []models.Milestone{childA, childB}

	ids := milestoneFamilyIDs(parent)
	assert.Equal(t, []uuid.UUID{parent.ID, childA.ID, childB.ID}, ids)
}

func TestRemainingProjectFund(t *testing.T) {
	cases := []struct {
		name        string
		function    string
		left        string
		cost        float64
		wantLeft    string
		transferred bool
	}{
		{"whole project drains to zero", hedera.FuncFundProject, "700", 400, "0", true},
		{"whole project usdc drains to zero", hedera.FuncFundUsdcToProject, "123.45", 50, "0", true},
		{"milestone subtracts cost", hedera.FuncFundMilestone, "1000", 400, "600", false},
		{"last milestone flips transferred", hedera.FuncFundMilestone, "400", 400, "0", true},
		{"overdraw still transferred", hedera.FuncFundUsdcToMilestone, "300", 400, "-100", true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			left, transferred, err := remainingProjectFund(tt.function, tt.left, tt.cost)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLeft, left)
			assert.Equal(t, tt.transferred, transferred)
		})
	}
}

func TestRemainingProjectFundBadAmount(t *testing.T) {
	_, _, err := remainingProjectFund(hedera.FuncFundMilestone, "not-a-number", 100)
	assert.Error(t, err)
}

func TestClaimTransactionWithoutRedis(t *testing.T) {
	s := &ReconcilerService{logger: logrus.WithField("service", "reconciler")}
	assert.True(t, s.claimTransaction(context.Background(), "0xabc"))
}

func TestClaimTransactionRedisDown(t *testing.T) {
	// An unreachable redis degrades to processing without dedupe instead
	// of rejecting the submission.
	s := &ReconcilerService{
		redis: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		}),
		logger: logrus.WithField("service", "reconciler"),
	}
	assert.True(t, s.claimTransaction(context.Background(), "0xabc"))
}

func TestReconcileSkipsUndecodableLogs(t *testing.T) {
	gw := &fakeGateway{mirrorResult: &hedera.MirrorContractResult{
		Hash:   "0xfeed",
		Status: "0x1",
		Logs: []hedera.MirrorLog{
			{Index: 0, Data: "0xdeadbeef", Topics: []string{"0x00"}},
		},
	}}
	s := &ReconcilerService{
		config:  &config.Config{},
		gateway: gw,
		logger:  logrus.WithField("service", "reconciler"),
	}

	result, err := s.Reconcile(context.Background(), uuid.New(), &ReconcileRequest{
		TxHash:   "0xfeed",
		Event:    hedera.EventMilestoneFunded,
		Function: hedera.FuncFundMilestone,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "0xfeed", result.Hash)
}

func TestReconcileRejectsUnknownSelection(t *testing.T) {
	s := &ReconcilerService{
		config: &config.Config{},
		logger: logrus.WithField("service", "reconciler"),
	}
	_, err := s.Reconcile(context.Background(), uuid.New(), &ReconcileRequest{
		TxHash:   "0xfeed",
		Event:    hedera.EventMilestoneFunded,
		Function: hedera.FuncPayoutProject,
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
