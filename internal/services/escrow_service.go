// internal/services/escrow_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/hedera"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

// milestoneBatchSize caps how many milestones go into one addMilestones
// call. The contract call runs out of gas beyond this.
const milestoneBatchSize = 7

const tokenAssociateGas = 15_000_000

// hcsAutoRenewSeconds is 90 days, the maximum the network accepts.
const hcsAutoRenewSeconds = 7_776_000

type EscrowService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       hedera.Gateway
	notifications *NotificationService
	logger        *logrus.Entry
}

func NewEscrowService(db *gorm.DB, config *config.Config, gateway hedera.Gateway, notifications *NotificationService) *EscrowService {
	return &EscrowService{
		db:            db,
		config:        config,
		gateway:       gateway,
		notifications: notifications,
		logger:        logrus.WithField("service", "escrow"),
	}
}

// Deploy runs the escrow deployment flow for a project. Each of the three
// steps is checkpointed on the Escrow row, so a rerun after a partial
// failure resumes where the last attempt stopped instead of creating a
// second contract.
func (s *EscrowService) Deploy(ctx context.Context, actorID, projectID uuid.UUID) (*models.Escrow, error) {
	var project models.Project
	err := s.db.Preload("Members.User").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Where("parent_id IS NULL").Order("sequence_number ASC")
		}).
		Preload("Escrow").
		First(&project, "id = ?", projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	member := project.Member(actorID)
	if member == nil || member.ProjectRole != models.ProjectUserPurchaser {
		return nil, apperrors.Authorization("only the purchaser may deploy the escrow")
	}
	if project.State != models.ProjectStateAddEscrow {
		return nil, apperrors.StateConflict("project is not in the escrow phase")
	}
	if project.Escrow == nil {
		return nil, apperrors.StateConflict("project has no escrow record")
	}

	escrow := project.Escrow

	if err := s.runDeployment(ctx, &project, escrow, s.persistEscrow); err != nil {
		return escrow, err
	}

	if err := s.finishDeployment(ctx, &project); err != nil {
		return escrow, err
	}
	return escrow, nil
}

// runDeployment executes the three checkpointed steps, skipping any that
// already succeeded. A checkpoint must land in the database before the next
// step runs; when the write fails the run aborts, otherwise a rerun would
// re-submit a step the database never recorded as done.
func (s *EscrowService) runDeployment(ctx context.Context, project *models.Project, escrow *models.Escrow, persist func(*models.Escrow) error) error {
	if escrow.EscrowDeployedStatus != models.DeployStatusSuccess {
		if err := s.deployContract(ctx, project, escrow); err != nil {
			s.failFrom(escrow, 1)
			persist(escrow)
			return apperrors.External("escrow contract deployment failed", err)
		}
		escrow.EscrowDeployedStatus = models.DeployStatusSuccess
		if err := persist(escrow); err != nil {
			return err
		}
	}

	if escrow.AddMilestoneStatus != models.DeployStatusSuccess {
		if err := s.registerMilestones(ctx, project, escrow); err != nil {
			s.failFrom(escrow, 2)
			persist(escrow)
			return apperrors.External("milestone registration failed", err)
		}
		escrow.AddMilestoneStatus = models.DeployStatusSuccess
		if err := persist(escrow); err != nil {
			return err
		}
	}

	if escrow.TransferOwnershipStatus != models.DeployStatusSuccess {
		if err := s.transferOwnership(ctx, project, escrow); err != nil {
			s.failFrom(escrow, 3)
			persist(escrow)
			return apperrors.External("ownership transfer failed", err)
		}
		escrow.TransferOwnershipStatus = models.DeployStatusSuccess
		if err := persist(escrow); err != nil {
			return err
		}
	}

	return nil
}

// failFrom marks the failing step and everything after it FAILED. Steps
// that already succeeded keep their status so a rerun skips them.
func (s *EscrowService) failFrom(escrow *models.Escrow, step int) {
	if step <= 1 {
		escrow.EscrowDeployedStatus = models.DeployStatusFailed
	}
	if step <= 2 && escrow.AddMilestoneStatus != models.DeployStatusSuccess {
		escrow.AddMilestoneStatus = models.DeployStatusFailed
	}
	if step <= 3 && escrow.TransferOwnershipStatus != models.DeployStatusSuccess {
		escrow.TransferOwnershipStatus = models.DeployStatusFailed
	}
}

func (s *EscrowService) persistEscrow(escrow *models.Escrow) error {
	err := s.db.Model(&models.Escrow{}).Where("id = ?", escrow.ID).Updates(map[string]interface{}{
		"escrow_contract_id":        escrow.EscrowContractID,
		"escrow_address":            escrow.EscrowAddress,
		"escrow_deployed_status":    escrow.EscrowDeployedStatus,
		"add_milestone_status":      escrow.AddMilestoneStatus,
		"transfer_ownership_status": escrow.TransferOwnershipStatus,
	}).Error
	if err != nil {
		s.logger.WithError(err).WithField("escrow_id", escrow.ID).Error("failed to persist escrow checkpoint")
		return fmt.Errorf("failed to persist escrow checkpoint: %w", err)
	}
	return nil
}

// deployContract runs step one: create the contract, associate the USDC
// token when needed, and point the child contracts at the staked node.
func (s *EscrowService) deployContract(ctx context.Context, project *models.Project, escrow *models.Escrow) error {
	purchaser := project.MemberWithRole(models.ProjectUserPurchaser)
	provider := project.MemberWithRole(models.ProjectUserCP)
	if purchaser == nil || provider == nil {
		return fmt.Errorf("project is missing a purchaser or provider member")
	}

	purchaserAddr, err := walletSolidityAddress(purchaser.User.WalletAddress)
	if err != nil {
		return fmt.Errorf("purchaser wallet: %w", err)
	}
	providerAddr, err := walletSolidityAddress(provider.User.WalletAddress)
	if err != nil {
		return fmt.Errorf("provider wallet: %w", err)
	}
	feeAddr, err := hedera.SolidityAddress(s.config.Hedera.FeeAccountID)
	if err != nil {
		return fmt.Errorf("fee account: %w", err)
	}

	tokenAddr := hedera.ZeroAddress
	unit := hedera.UnitFor(string(project.Currency))
	if project.Currency == models.CurrencyUSDC {
		tokenAddr, err = hedera.SolidityAddress(s.config.Hedera.USDCAddress)
		if err != nil {
			return fmt.Errorf("usdc token: %w", err)
		}
	}

	totalFund, err := hedera.ScaleAmount(project.TotalProjectFund, unit)
	if err != nil {
		return fmt.Errorf("total fund: %w", err)
	}

	commission := uint16(math.Round(s.config.Platform.CommissionPercent * 100))

	params := hedera.NewCallParams().
		AddString(project.ID.String()).
		AddAddress(purchaserAddr).
		AddAddress(providerAddr).
		AddUint16(commission).
		AddAddress(feeAddr).
		AddAddress(tokenAddr).
		AddUint256(totalFund).
		AddUint8(project.AssignedFundTo.Ordinal()).
		AddUint8(project.FundTransferType.Ordinal())

	result, err := s.gateway.CreateContract(ctx, hedera.CreateContractRequest{
		BytecodeFileID: s.config.Hedera.BytecodeFileID,
		Gas:            s.config.Hedera.GasLimit,
		Params:         params,
	})
	if err != nil {
		return err
	}

	escrow.EscrowContractID = result.ContractID
	escrow.EscrowAddress = result.EVMAddress

	if project.Currency == models.CurrencyUSDC {
		associateParams := hedera.NewCallParams().AddAddress(tokenAddr)
		if _, err := s.gateway.ExecuteContract(ctx, result.ContractID, "tokenAssociate", tokenAssociateGas, associateParams); err != nil {
			return err
		}
	}

	// The escrow spawns a milestone and a royalty contract; both need a
	// staked node to earn rewards.
	for _, query := range []string{"getMilestoneContract", "getRoyaltyContract"} {
		addr, err := s.gateway.QueryContractAddress(ctx, result.ContractID, query, s.config.Hedera.GasLimit)
		if err != nil {
			return err
		}
		child := hedera.AccountFromEVMAddress(addr)
		if err := s.gateway.SetStakedNode(ctx, child, s.config.Hedera.StakedNodeID); err != nil {
			return err
		}
	}

	return nil
}

// registerMilestones runs step two: push every top-level milestone onto the
// contract in fixed-size batches.
func (s *EscrowService) registerMilestones(ctx context.Context, project *models.Project, escrow *models.Escrow) error {
	unit := hedera.UnitFor(string(project.Currency))
	milestones := project.Milestones

	for start := 0; start < len(milestones); start += milestoneBatchSize {
		end := start + milestoneBatchSize
		if end > len(milestones) {
			end = len(milestones)
		}
		batch := milestones[start:end]

		params, err := milestoneBatchParams(s.db, batch, unit)
		if err != nil {
			return err
		}
		if _, err := s.gateway.ExecuteContract(ctx, escrow.EscrowContractID, "addMilestones", s.config.Hedera.GasLimit, params); err != nil {
			return err
		}
	}
	return nil
}

// milestoneBatchParams flattens one batch of milestones into the parallel
// arrays addMilestones expects.
func milestoneBatchParams(db *gorm.DB, batch []models.Milestone, unit int64) (*hedera.CallParams, error) {
	ids := make([]string, 0, len(batch))
	startDates := make([]uint32, 0, len(batch))
	endDates := make([]uint32, 0, len(batch))
	funds := make([]*big.Int, 0, len(batch))
	revisions := make([]uint8, 0, len(batch))
	royaltyTypes := make([]uint8, 0, len(batch))
	royalties := make([]*big.Int, 0, len(batch))
	penaltyDurations := make([]string, 0, len(batch))
	penaltyValues := make([]string, 0, len(batch))

	for i := range batch {
		m := &batch[i]

		fund, err := hedera.ScaleAmount(m.FundAllocation, unit)
		if err != nil {
			return nil, fmt.Errorf("milestone %s fund: %w", m.ID, err)
		}
		royalty, err := RoyaltyScaled(m, unit)
		if err != nil {
			return nil, fmt.Errorf("milestone %s royalty: %w", m.ID, err)
		}

		var penalties []models.PenaltyBreach
		if len(m.Penalties) > 0 {
			penalties = m.Penalties
		} else if db != nil {
			if err := db.Where("milestone_id = ?", m.ID).Find(&penalties).Error; err != nil {
				return nil, fmt.Errorf("milestone %s penalties: %w", m.ID, err)
			}
		}
		durations := make([]string, 0, len(penalties))
		values := make([]string, 0, len(penalties))
		for _, p := range penalties {
			durations = append(durations, strconv.Itoa(p.TimePeriod))
			values = append(values, p.Penalty)
		}

		ids = append(ids, m.ID.String())
		startDates = append(startDates, uint32(m.StartDate.Unix()))
		endDates = append(endDates, uint32(m.EndDate.Unix()))
		funds = append(funds, fund)
		revisions = append(revisions, uint8(m.Revisions))
		royaltyTypes = append(royaltyTypes, m.RoyaltyType.Ordinal())
		royalties = append(royalties, royalty)
		penaltyDurations = append(penaltyDurations, strings.Join(durations, "-"))
		penaltyValues = append(penaltyValues, strings.Join(values, "-"))
	}

	return hedera.NewCallParams().
		AddStringArray(ids).
		AddUint32Array(startDates).
		AddUint32Array(endDates).
		AddUint256Array(funds).
		AddUint8Array(revisions).
		AddUint8Array(royaltyTypes).
		AddUint256Array(royalties).
		AddStringArray(penaltyDurations).
		AddStringArray(penaltyValues), nil
}

// RoyaltyScaled resolves a milestone's royalty to on-chain units. A PERCENT
// royalty is taken from the fund allocation and rounded before scaling.
func RoyaltyScaled(m *models.Milestone, unit int64) (*big.Int, error) {
	amount := m.RoyaltyAmount
	if amount == "" {
		amount = "0"
	}

	if m.RoyaltyValueIn == models.ValueKindPercent {
		fund, err := strconv.ParseFloat(m.FundAllocation, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fund allocation %q", m.FundAllocation)
		}
		pct, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid royalty percentage %q", amount)
		}
		amount = strconv.FormatFloat(math.Round(fund*pct/100), 'f', -1, 64)
	}

	return hedera.ScaleAmount(amount, unit)
}

// RoyaltyAmountValue resolves a milestone's royalty in whole currency units,
// the form the off-chain ledger stores.
func RoyaltyAmountValue(m *models.Milestone) (float64, error) {
	amount := m.RoyaltyAmount
	if amount == "" {
		amount = "0"
	}
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid royalty amount %q", amount)
	}
	if m.RoyaltyValueIn == models.ValueKindPercent {
		fund, err := strconv.ParseFloat(m.FundAllocation, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fund allocation %q", m.FundAllocation)
		}
		value = math.Round(fund * value / 100)
	}
	return value, nil
}

func (s *EscrowService) transferOwnership(ctx context.Context, project *models.Project, escrow *models.Escrow) error {
	purchaser := project.MemberWithRole(models.ProjectUserPurchaser)
	if purchaser == nil {
		return fmt.Errorf("project has no purchaser member")
	}
	addr, err := walletSolidityAddress(purchaser.User.WalletAddress)
	if err != nil {
		return fmt.Errorf("purchaser wallet: %w", err)
	}

	params := hedera.NewCallParams().AddAddress(addr)
	_, err = s.gateway.ExecuteContract(ctx, escrow.EscrowContractID, "transferOwnership", s.config.Hedera.GasLimit, params)
	return err
}

// finishDeployment creates the project's HCS notes topic and flips the
// project to CONTRACT_DEPLOYED. The topic is collaboration metadata, so a
// topic failure is logged but does not undo the on-chain deployment.
func (s *EscrowService) finishDeployment(ctx context.Context, project *models.Project) error {
	topicID, err := s.gateway.CreateTopic(ctx, project.ID.String(), hcsAutoRenewSeconds)
	if err != nil {
		s.logger.WithError(err).WithField("project_id", project.ID).Error("failed to create notes topic")
	}

	updates := map[string]interface{}{"state": models.ProjectStateContractDeployed}
	if topicID != "" {
		updates["hcs_topic_id"] = topicID
	}
	if err := s.db.Model(&models.Project{}).Where("id = ?", project.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish deployment: %w", err)
	}

	intents := make([]NotificationIntent, 0, 2)
	for _, role := range []models.ProjectUserRole{models.ProjectUserPurchaser, models.ProjectUserCP} {
		if member := project.MemberWithRole(role); member != nil {
			intents = append(intents, NotificationIntent{
				RecipientID: member.UserID,
				Category:    CategoryEscrow,
				Pattern:     "ESCROW_DEPLOYED",
				Message:     fmt.Sprintf("The escrow for project %q is live", project.Name),
				Metadata:    models.JSONB{"project_id": project.ID.String()},
			})
		}
	}
	s.notifications.Dispatch(ctx, intents...)
	return nil
}

// SubmitNote posts a collaboration note to the project's HCS topic.
func (s *EscrowService) SubmitNote(ctx context.Context, actorID, projectID uuid.UUID, note string) (string, error) {
	if strings.TrimSpace(note) == "" {
		return "", apperrors.Validation("note must not be empty")
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NotFound("project")
		}
		return "", fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return "", apperrors.Authorization("not a member of this project")
	}
	if project.HCSTopicID == "" {
		return "", apperrors.StateConflict("project has no notes topic yet")
	}

	payload := fmt.Sprintf(`{"author":"%s","note":%s,"at":%d}`, actorID, strconv.Quote(note), time.Now().Unix())
	txID, err := s.gateway.SubmitTopicMessage(ctx, project.HCSTopicID, []byte(payload))
	if err != nil {
		return "", apperrors.External("failed to submit note", err)
	}
	return txID, nil
}

// walletSolidityAddress accepts either a Hedera account id or an EVM hex
// address and yields the 40-char solidity form.
func walletSolidityAddress(wallet string) (string, error) {
	if wallet == "" {
		return "", fmt.Errorf("wallet address is empty")
	}
	if strings.Contains(wallet, ".") {
		return hedera.SolidityAddress(wallet)
	}
	return strings.TrimPrefix(strings.ToLower(wallet), "0x"), nil
}
