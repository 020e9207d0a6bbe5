package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// HandlerHealthResponse — health handler'а из API.
type HandlerHealthResponse struct {
	Status         string   `json:"status"`
	SuccessRate    float64  `json:"success_rate"`
	TasksProcessed int64    `json:"tasks_processed"`
	RecentErrors   []string `json:"recent_errors,omitempty"`
}

// RegistrationResponse — регистрация task handler'а из API.
type RegistrationResponse struct {
	TaskName       string                `json:"task_name"`
	Status         string                `json:"status"`
	TasksProcessed int64                 `json:"tasks_processed"`
	LastTaskAt     string                `json:"last_task_at,omitempty"`
	Restarts       int                   `json:"restarts"`
	Health         HandlerHealthResponse `json:"health"`
}

// MetricsResponse — счётчики worker'а из API.
type MetricsResponse struct {
	Total                int64   `json:"total"`
	Successes            int64   `json:"successes"`
	Failures             int64   `json:"failures"`
	CacheHits            int64   `json:"cache_hits"`
	CacheMisses          int64   `json:"cache_misses"`
	TokenTotal           int64   `json:"token_total"`
	TokenAverage         float64 `json:"token_average"`
	Compensations        int64   `json:"compensations"`
	CompensationFailures int64   `json:"compensation_failures"`
	CoordinationCalls    int64   `json:"coordination_calls"`
}

// StatusResponse — сводный статус worker'а из API.
type StatusResponse struct {
	Health          string                 `json:"health"`
	EngineConnected bool                   `json:"engine_connected"`
	Registrations   []RegistrationResponse `json:"registrations"`
	Metrics         MetricsResponse        `json:"metrics"`
	CacheEntries    int                    `json:"cache_entries"`
	CacheUtilized   float64                `json:"cache_utilization"`
	SagaBacklog     int                    `json:"saga_backlog"`
}

// SagaRecordResponse — запись компенсации из API.
type SagaRecordResponse struct {
	SagaID             string `json:"saga_id"`
	StepName           string `json:"step_name"`
	RecordedAt         string `json:"recorded_at"`
	ManualIntervention bool   `json:"manual_intervention,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
	Data               struct {
		ArtifactIDs []string `json:"artifact_ids,omitempty"`
		ResourceIDs []string `json:"resource_ids,omitempty"`
		CacheKeys   []string `json:"cache_keys,omitempty"`
	} `json:"data"`
}

// CompensationResponse — результат компенсации из API.
type CompensationResponse struct {
	SagaID                     string   `json:"saga_id"`
	Compensated                bool     `json:"compensated"`
	NoOp                       bool     `json:"no_op,omitempty"`
	RequiresManualIntervention bool     `json:"requires_manual_intervention,omitempty"`
	Failures                   []string `json:"failures,omitempty"`
	ArtifactsDeleted           int      `json:"artifacts_deleted,omitempty"`
	ResourcesReleased          int      `json:"resources_released,omitempty"`
	KeysInvalidated            int      `json:"keys_invalidated,omitempty"`
}

// CoordinationResponse — результат координации из API.
type CoordinationResponse struct {
	Success          bool   `json:"success"`
	Type             string `json:"type"`
	SourceWorkflowID string `json:"source_workflow_id"`
	TargetWorkflowID string `json:"target_workflow_id,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	Error            string `json:"error,omitempty"`
	RequiresRetry    bool   `json:"requires_retry,omitempty"`
	CompletedAt      string `json:"completed_at"`
}

// --- Request types ---

// CoordinateRequest — запрос координации.
type CoordinateRequest struct {
	SourceWorkflowID string `json:"source_workflow_id"`
	Request          struct {
		Type             string         `json:"type"`
		TargetWorkflowID string         `json:"target_workflow_id"`
		ResourceID       string         `json:"resource_id,omitempty"`
		Payload          map[string]any `json:"payload,omitempty"`
	} `json:"request"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для operational API worker'а.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetStatus возвращает сводный статус worker'а.
func (c *Client) GetStatus() (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/status", &status)
	return &status, err
}

// ListRegistrations возвращает регистрации task handlers.
func (c *Client) ListRegistrations() ([]RegistrationResponse, error) {
	var registrations []RegistrationResponse
	err := c.get("/api/v1/registrations", &registrations)
	return registrations, err
}

// GetSagaRecord возвращает запись компенсации саги.
func (c *Client) GetSagaRecord(sagaID string) (*SagaRecordResponse, error) {
	var record SagaRecordResponse
	err := c.get("/api/v1/sagas/"+sagaID, &record)
	return &record, err
}

// CompensateSaga запускает компенсацию саги.
func (c *Client) CompensateSaga(sagaID string) (*CompensationResponse, error) {
	var result CompensationResponse
	err := c.post("/api/v1/sagas/"+sagaID+"/compensate", nil, &result)
	return &result, err
}

// Coordinate выполняет cross-workflow операцию.
func (c *Client) Coordinate(req CoordinateRequest) (*CoordinationResponse, error) {
	var result CoordinationResponse
	err := c.post("/api/v1/coordination", req, &result)
	return &result, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	// Тело может нести и обычный DataResponse (частичная компенсация,
	// неуспешная координация) — тогда это не errorResponse
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Code != "" {
		return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
	}

	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return fmt.Errorf("API error: HTTP %d: %s", resp.StatusCode, string(raw))
}
