package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/author"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/auth"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/config"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/middleware"
	"github.com/phoenixpulsar/auto-chain-verify/internal/identity"
	"github.com/phoenixpulsar/auto-chain-verify/internal/ledger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/vehicle"
	"github.com/phoenixpulsar/auto-chain-verify/internal/view"
)

// 视图层消费的窄接口；由对应的 service 实现，测试侧用假实现。
type (
	VehicleSearcher interface {
		Search(ctx context.Context, term string, fields vehicle.FieldSet) vehicle.SearchResult
	}

	SnapshotGetter interface {
		Get(ctx context.Context, id int64) (*view.Snapshot, error)
	}

	LedgerService interface {
		Add(ctx context.Context, in ledger.AddInput) (*ledger.AddResult, error)
		ListForVehicle(ctx context.Context, vehicleID int64) ledger.HistoryResult
	}

	AuthorResolver interface {
		Resolve(ctx context.Context, accountID string) author.Resolution
	}
)

// Handler 车辆登记/维保台账的 HTTP JSON API。
type Handler struct {
	authCfg       config.AuthConfig
	session       *identity.Session
	vehicles      VehicleSearcher
	snapshots     SnapshotGetter
	ledger        LedgerService
	authors       AuthorResolver
	requireAuthor bool
	writeLimiter  *middleware.KeyedLimiter
	log           logger.Logger
}

// NewHandler 组装 HTTP 入口。session 可为 nil（纯 token 模式）。
func NewHandler(
	authCfg config.AuthConfig,
	session *identity.Session,
	vehicles VehicleSearcher,
	snapshots SnapshotGetter,
	ledgerSvc LedgerService,
	authors AuthorResolver,
	requireAuthor bool,
	writeLimiter *middleware.KeyedLimiter,
	log logger.Logger,
) *Handler {
	return &Handler{
		authCfg:       authCfg,
		session:       session,
		vehicles:      vehicles,
		snapshots:     snapshots,
		ledger:        ledgerSvc,
		authors:       authors,
		requireAuthor: requireAuthor,
		writeLimiter:  writeLimiter,
		log:           log,
	}
}

// Routes 注册全部路由。
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/session/login", h.handleLogin)
	mux.HandleFunc("/api/session/logout", h.handleLogout)
	mux.HandleFunc("/api/author", h.handleAuthor)
	mux.HandleFunc("/api/vehicles", h.handleSearch)
	mux.HandleFunc("/api/vehicles/", h.handleVehicleSubtree)
	return h.withAccessLog(mux)
}

// withAccessLog 记录每个 HTTP 请求的耗时。
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if h.log != nil {
			h.log.WithFields(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"cost":   time.Since(start).String(),
			}).Debug("http request")
		}
	})
}

// accountFrom 解析当前请求的身份：优先 Bearer token，
// 无 token 时退回进程会话（本地开发模式）；都没有即匿名。
func (h *Handler) accountFrom(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw != "" {
		tokenStr := raw
		if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
			tokenStr = strings.TrimSpace(tokenStr[len("bearer "):])
		}
		if h.authCfg.Enabled {
			account, err := auth.VerifyAccountToken(h.authCfg, tokenStr)
			if err == nil {
				return account
			}
			// 无效 token 按匿名处理，读路径不因此 401
			return identity.Anonymous
		}
	}
	if h.session != nil {
		return h.session.AccountID()
	}
	return identity.Anonymous
}

type loginRequest struct {
	Account string `json:"account"`
}

type loginResponse struct {
	Account   string    `json:"account"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin 签入：换取账号 token，并同步进程会话。
// 真实钱包交互不在范围内，这里只是身份提供方的占位入口。
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	account := strings.TrimSpace(req.Account)
	if account == "" {
		writeError(w, http.StatusBadRequest, "account required")
		return
	}

	token, expiresAt, err := auth.GenerateAccountToken(h.authCfg, account, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	if h.session != nil {
		_ = h.session.SignIn(account)
	}
	writeJSON(w, http.StatusOK, loginResponse{Account: account, Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.session != nil {
		h.session.SignOut()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

type authorResponse struct {
	State         author.State `json:"state"`
	CanWrite      bool         `json:"can_write"`
	AuthorID      *int64       `json:"author_id,omitempty"`
	AuthorAccount string       `json:"author_account,omitempty"`
}

// handleAuthor 返回当前身份的作者认证状态，前端据此显示/隐藏写入口。
func (h *Handler) handleAuthor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	res := h.authors.Resolve(r.Context(), h.accountFrom(r))

	resp := authorResponse{State: res.State, CanWrite: h.allowWrite(res)}
	if res.Author != nil {
		id := res.Author.ID
		resp.AuthorID = &id
		resp.AuthorAccount = res.Author.AccountName
	}
	writeJSON(w, http.StatusOK, resp)
}

type vehicleDTO struct {
	ID     int64  `json:"id"`
	VIN    string `json:"vin"`
	Plates string `json:"plates"`
	Make   string `json:"make"`
	Model  string `json:"model"`
	Year   int    `json:"year"`
	Color  string `json:"color,omitempty"`
}

type searchResponse struct {
	Vehicles []vehicleDTO `json:"vehicles"`
	Degraded bool         `json:"degraded"`
}

// handleSearch 车辆检索。scope=identifiers 只按 VIN/车牌，默认全字段。
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fields := vehicle.FieldSetAll
	if r.URL.Query().Get("scope") == "identifiers" {
		fields = vehicle.FieldSetIdentifiers
	}

	res := h.vehicles.Search(r.Context(), r.URL.Query().Get("query"), fields)
	out := searchResponse{Vehicles: make([]vehicleDTO, 0, len(res.Vehicles)), Degraded: res.Degraded}
	for _, v := range res.Vehicles {
		out.Vehicles = append(out.Vehicles, toVehicleDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleVehicleSubtree 手工二级路由：
//   GET  /api/vehicles/{id}
//   GET  /api/vehicles/{id}/maintenance
//   POST /api/vehicles/{id}/maintenance
func (h *Handler) handleVehicleSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/vehicles/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleVehicleDetail(w, r, id)
	case len(parts) == 2 && parts[1] == "maintenance":
		h.handleMaintenance(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type snapshotResponse struct {
	Vehicle vehicleDTO `json:"vehicle"`
	BuiltAt time.Time  `json:"built_at"`
}

func (h *Handler) handleVehicleDetail(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vehicle.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Vehicle: toVehicleDTO(snap.Vehicle), BuiltAt: snap.BuiltAt})
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request, vehicleID int64) {
	switch r.Method {
	case http.MethodGet:
		h.handleListMaintenance(w, r, vehicleID)
	case http.MethodPost:
		h.handleAddMaintenance(w, r, vehicleID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type recordDTO struct {
	ID                 int64     `json:"id"`
	VehicleID          int64     `json:"vehicle_id"`
	ServiceDescription string    `json:"service_description"`
	AnchorHash         string    `json:"anchor_hash"`
	AuthorAccount      string    `json:"author_account,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type historyResponse struct {
	Records  []recordDTO `json:"records"`
	Degraded bool        `json:"degraded"`
}

func (h *Handler) handleListMaintenance(w http.ResponseWriter, r *http.Request, vehicleID int64) {
	res := h.ledger.ListForVehicle(r.Context(), vehicleID)
	writeJSON(w, http.StatusOK, toHistoryResponse(res))
}

type addMaintenanceRequest struct {
	ServiceDescription string `json:"service_description"`
}

type addMaintenanceResponse struct {
	Outcome    ledger.Outcome `json:"outcome"`
	AnchorHash string         `json:"anchor_hash,omitempty"`
	Records    []recordDTO    `json:"records,omitempty"`
}

// handleAddMaintenance 写路径：身份 -> 作者认证 -> 限流 -> 台账写入。
// 失败分支只返回结果标签，客户端保留输入自行重试。
func (h *Handler) handleAddMaintenance(w http.ResponseWriter, r *http.Request, vehicleID int64) {
	account := h.accountFrom(r)
	res := h.authors.Resolve(r.Context(), account)

	if !h.allowWrite(res) {
		switch res.State {
		case author.StateUnauthenticated:
			writeError(w, http.StatusUnauthorized, "sign in required")
		case author.StateIndeterminate:
			// 瞬时故障：明确告诉用户"暂时无法确认"，而不是"你不是认证作者"
			writeError(w, http.StatusServiceUnavailable, "could not verify author, try again")
		default:
			writeError(w, http.StatusForbidden, "not a verified author")
		}
		return
	}

	limitKey := account
	if limitKey == identity.Anonymous {
		limitKey = r.RemoteAddr
	}
	if h.writeLimiter != nil && !h.writeLimiter.Allow(r.Context(), limitKey) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req addMaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	in := ledger.AddInput{VehicleID: vehicleID, Description: req.ServiceDescription}
	if res.Author != nil {
		id := res.Author.ID
		in.AuthorID = &id
	}

	result, err := h.ledger.Add(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := addMaintenanceResponse{Outcome: result.Outcome, AnchorHash: result.AnchorHash}
	switch result.Outcome {
	case ledger.OutcomeCommitted:
		resp.Records = toRecordDTOs(result.Records)
		writeJSON(w, http.StatusCreated, resp)
	case ledger.OutcomeAnchorFailed:
		resp.AnchorHash = "" // 失败分支不对外暴露 token
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		resp.AnchorHash = ""
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// allowWrite 写入口的放行策略；RequireVerifiedAuthor 关闭时对任何身份放行。
func (h *Handler) allowWrite(res author.Resolution) bool {
	if !h.requireAuthor {
		return true
	}
	return res.CanWrite()
}

func toVehicleDTO(v vehicle.Vehicle) vehicleDTO {
	return vehicleDTO{
		ID:     v.ID,
		VIN:    v.VIN,
		Plates: v.Plates,
		Make:   v.Make,
		Model:  v.Model,
		Year:   v.Year,
		Color:  v.Color,
	}
}

func toRecordDTOs(records []ledger.MaintenanceRecord) []recordDTO {
	out := make([]recordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, recordDTO{
			ID:                 rec.ID,
			VehicleID:          rec.VehicleID,
			ServiceDescription: rec.ServiceDescription,
			AnchorHash:         rec.AnchorHash,
			AuthorAccount:      rec.AuthorAccountName(),
			CreatedAt:          rec.CreatedAt,
		})
	}
	return out
}

func toHistoryResponse(res ledger.HistoryResult) historyResponse {
	return historyResponse{Records: toRecordDTOs(res.Records), Degraded: res.Degraded}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
