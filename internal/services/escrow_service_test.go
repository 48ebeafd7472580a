// internal/services/escrow_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/hedera"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

func TestRoyaltyScaledAmount(t *testing.T) {
	m := &models.Milestone{
		FundAllocation: "1000",
		RoyaltyAmount:  "50",
		RoyaltyValueIn: models.ValueKindAmount,
	}

	scaled, err := RoyaltyScaled(m, hedera.HBARUnit)
	require.NoError(t, err)
	assert.Equal(t, "5000000000", scaled.String())
}

func TestRoyaltyScaledPercent(t *testing.T) {
	m := &models.Milestone{
		FundAllocation: "1000",
		RoyaltyAmount:  "2.5",
		RoyaltyValueIn: models.ValueKindPercent,
	}

	// 2.5% of 1000 is 25, scaled to USDC units
	scaled, err := RoyaltyScaled(m, hedera.USDCUnit)
	require.NoError(t, err)
	assert.Equal(t, "25000000", scaled.String())
}

func TestRoyaltyScaledEmptyAmount(t *testing.T) {
	m := &models.Milestone{FundAllocation: "1000"}

	scaled, err := RoyaltyScaled(m, hedera.HBARUnit)
	require.NoError(t, err)
	assert.Equal(t, "0", scaled.String())
}

func TestRoyaltyScaledInvalid(t *testing.T) {
	m := &models.Milestone{
		FundAllocation: "abc",
		RoyaltyAmount:  "10",
		RoyaltyValueIn: models.ValueKindPercent,
	}
	_, err := RoyaltyScaled(m, hedera.HBARUnit)
	assert.Error(t, err)
}

func TestRoyaltyAmountValue(t *testing.T) {
	m := &models.Milestone{
		FundAllocation: "1000",
		RoyaltyAmount:  "50",
		RoyaltyValueIn: models.ValueKindAmount,
	}
	value, err := RoyaltyAmountValue(m)
	require.NoError(t, err)
	assert.Equal(t, 50.0, value)

	m.RoyaltyValueIn = models.ValueKindPercent
	m.RoyaltyAmount = "2.5"
	value, err = RoyaltyAmountValue(m)
	require.NoError(t, err)
	assert.Equal(t, 25.0, value)

	m.RoyaltyAmount = ""
	value, err = RoyaltyAmountValue(m)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestMilestoneBatchParams(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)

	batch := []models.Milestone{
		{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			StartDate:      start,
			EndDate:        end,
			FundAllocation: "100",
			Revisions:      3,
			RoyaltyType:    models.RoyaltyTypePrePayment,
			RoyaltyAmount:  "10",
			RoyaltyValueIn: models.ValueKindAmount,
			Penalties: []models.PenaltyBreach{
				{TimePeriod: 7, Penalty: "5"},
				{TimePeriod: 14, Penalty: "10"},
			},
		},
		{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			StartDate:      start,
			EndDate:        end,
			FundAllocation: "200",
			Revisions:      1,
			RoyaltyType:    models.RoyaltyTypePostKPI,
			Penalties:      []models.PenaltyBreach{{TimePeriod: 7, Penalty: "5"}},
		},
	}

	params, err := milestoneBatchParams(nil, batch, hedera.HBARUnit)
	require.NoError(t, err)

	args := params.Args()
	require.Len(t, args, 9)

	assert.Equal(t, hedera.ArgStringArray, args[0].Type)
	assert.Equal(t, []string{batch[0].ID.String(), batch[1].ID.String()}, args[0].Value)

	assert.Equal(t, hedera.ArgUint32Array, args[1].Type)
	assert.Equal(t, []uint32{uint32(start.Unix()), uint32(start.Unix())}, args[1].Value)
	assert.Equal(t, []uint32{uint32(end.Unix()), uint32(end.Unix())}, args[2].Value)

	assert.Equal(t, hedera.ArgUint256Array, args[3].Type)
	assert.Equal(t, []string{"10000000000", "20000000000"}, args[3].Value)

	assert.Equal(t, []uint8{3, 1}, args[4].Value)
	assert.Equal(t, []uint8{0, 1}, args[5].Value)
	assert.Equal(t, []string{"1000000000", "0"}, args[6].Value)

	assert.Equal(t, []string{"7-14", "7"}, args[7].Value)
	assert.Equal(t, []string{"5-10", "5"}, args[8].Value)
}

func TestMilestoneBatchParamsBadAmount(t *testing.T) {
	batch := []models.Milestone{{FundAllocation: "not-a-number"}}
	_, err := milestoneBatchParams(nil, batch, hedera.HBARUnit)
	assert.Error(t, err)
}

func TestFailFromKeepsSucceededSteps(t *testing.T) {
	s := &EscrowService{}

	escrow := &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusSuccess,
		AddMilestoneStatus:      models.DeployStatusPending,
		TransferOwnershipStatus: models.DeployStatusPending,
	}
	s.failFrom(escrow, 2)
	assert.Equal(t, models.DeployStatusSuccess, escrow.EscrowDeployedStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.TransferOwnershipStatus)

	escrow = &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusPending,
		AddMilestoneStatus:      models.DeployStatusPending,
		TransferOwnershipStatus: models.DeployStatusPending,
	}
	s.failFrom(escrow, 1)
	assert.Equal(t, models.DeployStatusFailed, escrow.EscrowDeployedStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.TransferOwnershipStatus)

	escrow = &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusSuccess,
		AddMilestoneStatus:      models.DeployStatusSuccess,
		TransferOwnershipStatus: models.DeployStatusPending,
	}
	s.failFrom(escrow, 3)
	assert.Equal(t, models.DeployStatusSuccess, escrow.EscrowDeployedStatus)
	assert.Equal(t, models.DeployStatusSuccess, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.TransferOwnershipStatus)
}

func TestWalletSolidityAddress(t *testing.T) {
	addr, err := walletSolidityAddress("0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000000000000000000000004d2", addr)

	addr, err = walletSolidityAddress("0xABCDEF0123456789abcdef0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", addr)

	_, err = walletSolidityAddress("")
	assert.Error(t, err)
}

// fakeGateway records every contract call and can fail a chosen function.
type fakeGateway struct {
	calls        []string
	failCreate   bool
	failFunction string
	mirrorResult *hedera.MirrorContractResult
}

func (g *fakeGateway) CreateContract(ctx context.Context, req hedera.CreateContractRequest) (*hedera.CreateContractResult, error) {
	g.calls = append(g.calls, "createContract")
	if g.failCreate {
		return nil, errors.New("contract creation reverted")
	}
	return &hedera.CreateContractResult{ContractID: "0.0.5005", EVMAddress: "000000000000000000000000000000000000138d", Status: "SUCCESS"}, nil
}

func (g *fakeGateway) ExecuteContract(ctx context.Context, contractID, function string, gas int64, params *hedera.CallParams) (*hedera.ExecuteResult, error) {
	g.calls = append(g.calls, function)
	if function == g.failFunction {
		return nil, errors.New("contract call reverted")
	}
	return &hedera.ExecuteResult{TransactionID: "0.0.2@123.456", Status: "SUCCESS"}, nil
}

func (g *fakeGateway) QueryContractAddress(ctx context.Context, contractID, function string, gas int64) (string, error) {
	g.calls = append(g.calls, function)
	return "00000000000000000000000000000000000004d3", nil
}

func (g *fakeGateway) SetStakedNode(ctx context.Context, contractID string, nodeID int) error {
	g.calls = append(g.calls, "setStakedNode")
	return nil
}

func (g *fakeGateway) CreateTopic(ctx context.Context, memo string, autoRenewSeconds int64) (string, error) {
	g.calls = append(g.calls, "createTopic")
	return "0.0.7777", nil
}

func (g *fakeGateway) SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (string, error) {
	g.calls = append(g.calls, "submitMessage")
	return "0.0.2@123.789", nil
}

func (g *fakeGateway) ContractResult(ctx context.Context, txHash string) (*hedera.MirrorContractResult, error) {
	g.calls = append(g.calls, "contractResult")
	if g.mirrorResult != nil {
		return g.mirrorResult, nil
	}
	return nil, errors.New("not a mirror node")
}

func deployTestService(gw hedera.Gateway) *EscrowService {
	return &EscrowService{
		config: &config.Config{
			Hedera: config.HederaConfig{
				BytecodeFileID: "0.0.3333",
				USDCAddress:    "0.0.4004",
				FeeAccountID:   "0.0.2002",
				StakedNodeID:   3,
				GasLimit:       10_000_000,
			},
			Platform: config.PlatformConfig{CommissionPercent: 2.5},
		},
		gateway: gw,
		logger:  logrus.WithField("service", "escrow"),
	}
}

func deployTestProject() *models.Project {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &models.Project{
		BaseModel:        models.BaseModel{ID: uuid.New()},
		Name:             "escrow deploy",
		Currency:         models.CurrencyHBAR,
		TotalProjectFund: "1000",
		AssignedFundTo:   models.FundingTypeMilestone,
		FundTransferType: models.FundTransferManual,
		Members: []models.ProjectMember{
			{UserID: uuid.New(), ProjectRole: models.ProjectUserPurchaser, User: models.User{WalletAddress: "0.0.1001"}},
			{UserID: uuid.New(), ProjectRole: models.ProjectUserCP, User: models.User{WalletAddress: "0.0.1002"}},
		},
		Milestones: []models.Milestone{
			{
				BaseModel:      models.BaseModel{ID: uuid.New()},
				Name:           "design",
				FundAllocation: "400",
				RoyaltyType:    models.RoyaltyTypePrePayment,
				RoyaltyValueIn: models.ValueKindAmount,
				StartDate:      base,
				EndDate:        base.Add(day(10)),
			},
			{
				BaseModel:      models.BaseModel{ID: uuid.New()},
				Name:           "build",
				FundAllocation: "600",
				RoyaltyType:    models.RoyaltyTypePrePayment,
				RoyaltyValueIn: models.ValueKindAmount,
				StartDate:      base.Add(day(10)),
				EndDate:        base.Add(day(20)),
			},
		},
	}
}

func TestDeploymentRunsAllSteps(t *testing.T) {
	gw := &fakeGateway{}
	s := deployTestService(gw)
	project := deployTestProject()
	escrow := &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusPending,
		AddMilestoneStatus:      models.DeployStatusPending,
		TransferOwnershipStatus: models.DeployStatusPending,
	}

	var persisted int
	err := s.runDeployment(context.Background(), project, escrow, func(e *models.Escrow) error {
		persisted++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.DeployStatusSuccess, escrow.EscrowDeployedStatus)
	assert.Equal(t, models.DeployStatusSuccess, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusSuccess, escrow.TransferOwnershipStatus)
	assert.Equal(t, "0.0.5005", escrow.EscrowContractID)
	assert.Equal(t, 3, persisted)
	assert.Contains(t, gw.calls, "createContract")
	assert.Contains(t, gw.calls, "addMilestones")
	assert.Contains(t, gw.calls, "transferOwnership")
}

func TestDeploymentSkipsSucceededSteps(t *testing.T) {
	gw := &fakeGateway{}
	s := deployTestService(gw)
	project := deployTestProject()
	escrow := &models.Escrow{
		EscrowContractID:        "0.0.5005",
		EscrowDeployedStatus:    models.DeployStatusSuccess,
		AddMilestoneStatus:      models.DeployStatusFailed,
		TransferOwnershipStatus: models.DeployStatusFailed,
	}

	err := s.runDeployment(context.Background(), project, escrow, func(e *models.Escrow) error { return nil })
	require.NoError(t, err)

	// The contract from the first attempt is reused, never recreated.
	assert.NotContains(t, gw.calls, "createContract")
	assert.Contains(t, gw.calls, "addMilestones")
	assert.Contains(t, gw.calls, "transferOwnership")
	assert.Equal(t, models.DeployStatusSuccess, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusSuccess, escrow.TransferOwnershipStatus)
}

func TestDeploymentMarksLaterStepsFailed(t *testing.T) {
	gw := &fakeGateway{failFunction: "addMilestones"}
	s := deployTestService(gw)
	project := deployTestProject()
	escrow := &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusPending,
		AddMilestoneStatus:      models.DeployStatusPending,
		TransferOwnershipStatus: models.DeployStatusPending,
	}

	err := s.runDeployment(context.Background(), project, escrow, func(e *models.Escrow) error { return nil })
	require.Error(t, err)

	assert.Equal(t, models.DeployStatusSuccess, escrow.EscrowDeployedStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.AddMilestoneStatus)
	assert.Equal(t, models.DeployStatusFailed, escrow.TransferOwnershipStatus)
	assert.NotContains(t, gw.calls, "transferOwnership")
}

func TestDeploymentAbortsWhenCheckpointWriteFails(t *testing.T) {
	gw := &fakeGateway{}
	s := deployTestService(gw)
	project := deployTestProject()
	escrow := &models.Escrow{
		EscrowDeployedStatus:    models.DeployStatusPending,
		AddMilestoneStatus:      models.DeployStatusPending,
		TransferOwnershipStatus: models.DeployStatusPending,
	}

	boom := errors.New("connection reset")
	err := s.runDeployment(context.Background(), project, escrow, func(e *models.Escrow) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The run stops at the unrecorded checkpoint; a rerun must not find
	// later steps already attempted.
	assert.NotContains(t, gw.calls, "addMilestones")
	assert.NotContains(t, gw.calls, "transferOwnership")
	assert.Equal(t, models.DeployStatusPending, escrow.AddMilestoneStatus)
}
