// internal/hedera/gateway.go
package hedera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/escrowflow-backend/internal/config"
)

// Gateway is the boundary to the Hedera network. The deployment flow and
// the reconciler depend on this interface only, so tests can substitute a
// fake.
type Gateway interface {
	CreateContract(ctx context.Context, req CreateContractRequest) (*CreateContractResult, error)
	ExecuteContract(ctx context.Context, contractID, function string, gas int64, params *CallParams) (*ExecuteResult, error)
	QueryContractAddress(ctx context.Context, contractID, function string, gas int64) (string, error)
	SetStakedNode(ctx context.Context, contractID string, nodeID int) error
	CreateTopic(ctx context.Context, memo string, autoRenewSeconds int64) (string, error)
	SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (string, error)
	ContractResult(ctx context.Context, txHash string) (*MirrorContractResult, error)
}

type CreateContractRequest struct {
	BytecodeFileID string      `json:"bytecode_file_id"`
	Gas            int64       `json:"gas"`
	Params         *CallParams `json:"-"`
}

type CreateContractResult struct {
	ContractID string `json:"contract_id"`
	EVMAddress string `json:"evm_address"`
	Status     string `json:"status"`
}

type ExecuteResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Mirror node payload for GET /api/v1/contracts/results/{hash}.
type MirrorContractResult struct {
	Address string      `json:"address"`
	Amount  int64       `json:"amount"`
	From    string      `json:"from"`
	To      string      `json:"to"`
	Hash    string      `json:"hash"`
	Status  string      `json:"status"`
	Logs    []MirrorLog `json:"logs"`
}

type MirrorLog struct {
	Address    string   `json:"address"`
	ContractID string   `json:"contract_id"`
	Data       string   `json:"data"`
	Index      int      `json:"index"`
	Topics     []string `json:"topics"`
}

// Success reports whether the EVM receipt status marks the call successful.
func (r *MirrorContractResult) Success() bool {
	return r.Status == "0x1"
}

// Client talks to a contract relay for mutating operations and to the
// public mirror node for transaction results.
type Client struct {
	cfg    config.HederaConfig
	http   *http.Client
	logger *logrus.Entry
}

func NewClient(cfg config.HederaConfig) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logrus.WithField("component", "hedera"),
	}
}

func (c *Client) CreateContract(ctx context.Context, req CreateContractRequest) (*CreateContractResult, error) {
	body := map[string]interface{}{
		"bytecode_file_id":   req.BytecodeFileID,
		"gas":                req.Gas,
		"constructor_params": req.Params.Args(),
		"operator_account":   c.cfg.AccountID,
	}

	var result CreateContractResult
	if err := c.post(ctx, c.relayURL("/v1/contracts"), body, &result); err != nil {
		return nil, fmt.Errorf("contract create failed: %w", err)
	}

	c.logger.WithField("contract_id", result.ContractID).Info("Escrow contract created")
	return &result, nil
}

func (c *Client) ExecuteContract(ctx context.Context, contractID, function string, gas int64, params *CallParams) (*ExecuteResult, error) {
	body := map[string]interface{}{
		"function": function,
		"gas":      gas,
	}
	if params != nil {
		body["params"] = params.Args()
	}

	var result ExecuteResult
	url := c.relayURL(fmt.Sprintf("/v1/contracts/%s/calls", contractID))
	if err := c.post(ctx, url, body, &result); err != nil {
		return nil, fmt.Errorf("contract call %s failed: %w", function, err)
	}

	c.logger.WithFields(logrus.Fields{
		"contract_id": contractID,
		"function":    function,
		"status":      result.Status,
	}).Info("Contract call executed")
	return &result, nil
}

func (c *Client) QueryContractAddress(ctx context.Context, contractID, function string, gas int64) (string, error) {
	body := map[string]interface{}{
		"function": function,
		"gas":      gas,
	}

	var result struct {
		Address string `json:"address"`
	}
	url := c.relayURL(fmt.Sprintf("/v1/contracts/%s/query", contractID))
	if err := c.post(ctx, url, body, &result); err != nil {
		return "", fmt.Errorf("contract query %s failed: %w", function, err)
	}

	return result.Address, nil
}

func (c *Client) SetStakedNode(ctx context.Context, contractID string, nodeID int) error {
	body := map[string]interface{}{
		"staked_node_id":         nodeID,
		"decline_staking_reward": false,
	}

	url := c.relayURL(fmt.Sprintf("/v1/contracts/%s/staking", contractID))
	if err := c.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("staking update for %s failed: %w", contractID, err)
	}
	return nil
}

func (c *Client) CreateTopic(ctx context.Context, memo string, autoRenewSeconds int64) (string, error) {
	body := map[string]interface{}{
		"memo":              memo,
		"auto_renew_period": autoRenewSeconds,
	}

	var result struct {
		TopicID string `json:"topic_id"`
	}
	if err := c.post(ctx, c.relayURL("/v1/topics"), body, &result); err != nil {
		return "", fmt.Errorf("topic create failed: %w", err)
	}

	return result.TopicID, nil
}

func (c *Client) SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (string, error) {
	body := map[string]interface{}{
		"message": string(message),
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
	}
	url := c.relayURL(fmt.Sprintf("/v1/topics/%s/messages", topicID))
	if err := c.post(ctx, url, body, &result); err != nil {
		return "", fmt.Errorf("topic message submit failed: %w", err)
	}

	return result.TransactionID, nil
}

func (c *Client) ContractResult(ctx context.Context, txHash string) (*MirrorContractResult, error) {
	url := fmt.Sprintf("%s/api/v1/contracts/results/%s", c.cfg.MirrorEndpoint, txHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror node request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mirror node returned %d: %s", resp.StatusCode, payload)
	}

	var result MirrorContractResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode mirror node response: %w", err)
	}

	return &result, nil
}

func (c *Client) relayURL(path string) string {
	return c.cfg.RelayEndpoint + path
}

func (c *Client) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
