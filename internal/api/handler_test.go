package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"retail-service/internal/models"
	"retail-service/internal/service"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	auth     *service.AuthService
	admin    string
	operator string
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

type memIdempotency struct {
	mu    sync.Mutex
	keys  map[string]int64
	locks map[string]string
}

func (m *memIdempotency) GetOrderForKey(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok, nil
}

func (m *memIdempotency) SetOrderForKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memIdempotency) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.locks[key] = key
	return key, true, nil
}

func (m *memIdempotency) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func newTestServer(t *testing.T, checks map[string]Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())

	ms := store.NewMemoryStore()
	auth := service.NewAuthService(ms, service.AuthConfig{AdminRoleID: 1, TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	idem := &memIdempotency{keys: map[string]int64{}, locks: map[string]string{}}
	orders := service.NewOrderService(ms, nil, idem, service.OrderConfig{AdminRoleID: 1})
	products := service.NewProductService(ms, 1, 20)
	clients := service.NewClientService(ms, 1, 20)
	if checks == nil {
		checks = map[string]Pinger{"database": ms}
	}

	router := gin.New()
	NewHandler(orders, products, clients, auth, checks).SetupRoutes(router)

	s := &testServer{router: router, store: ms, auth: auth}
	s.admin = s.userToken(t, "admin", 1)
	s.operator = s.userToken(t, "operator", 2)
	return s
}

func (s *testServer) userToken(t *testing.T, username string, role int64) string {
	t.Helper()
	ctx := context.Background()
	root := &models.User{ID: 0, RoleID: 1}
	_, err := s.auth.Register(ctx, root, service.RegisterRequest{Username: username, Password: "secret", Role: &role})
	require.NoError(t, err)
	tok, err := s.auth.Login(ctx, username, "secret")
	require.NoError(t, err)
	return tok.AccessToken
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeaders(t, method, path, token, body, nil)
}

func (s *testServer) doWithHeaders(t *testing.T, method, path, token string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) seedClient(t *testing.T) int64 {
	t.Helper()
	c := &models.Client{Name: "Ana", Email: "ana@mail.com", CPF: "52998224725"}
	require.NoError(t, s.store.Repo().CreateClient(context.Background(), c))
	return c.ID
}

func (s *testServer) seedProduct(t *testing.T, barcode string, stock int) int64 {
	t.Helper()
	p := &models.Product{
		Description: "Produto " + barcode,
		SellValue:   decimal.RequireFromString("3.50"),
		Barcode:     barcode,
		SectionID:   1,
		Stock:       stock,
	}
	require.NoError(t, s.store.Repo().CreateProduct(context.Background(), p))
	return p.ID
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["status"])
}

func TestReady_FailingDependency(t *testing.T) {
	s := newTestServer(t, map[string]Pinger{"redis": failingPinger{}})

	w := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "not ready", body["status"])
	assert.Contains(t, body["failed"], "redis")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Could not validate credentials", decode(t, w)["detail"])
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = s.do(t, http.MethodGet, "/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/users/me", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "operator", me["username"])
	assert.NotContains(t, me, "password_hash")
}

func TestInactiveUser(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, s.store.Repo().CreateUser(ctx, &models.User{Username: "ghost", PasswordHash: string(hash), RoleID: 2, Disabled: true}))
	tok, err := s.auth.Login(ctx, "ghost", "secret")
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/users/me", tok.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Inactive user", decode(t, w)["detail"])
}

func TestLoginWithForm(t *testing.T) {
	s := newTestServer(t, nil)

	form := url.Values{"username": {"admin"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])

	w = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect username or password", decode(t, w)["detail"])

	w = s.do(t, http.MethodPost, "/auth/refresh-token", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, s.admin, decode(t, w)["access_token"])
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{"username": "maria", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Usuário cadastrado com sucesso", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{"username": "joao", "password": "pw", "role": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Precisa estar logado para definir permissão", decode(t, w)["detail"])

	w = s.do(t, http.MethodPost, "/auth/register", s.operator, map[string]interface{}{"username": "joao", "password": "pw", "role": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/auth/register", s.admin, map[string]interface{}{"username": "joao", "password": "pw", "role": 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{"username": "maria", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Usuário já existe", decode(t, w)["detail"])
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	clientID := s.seedClient(t)
	milk := s.seedProduct(t, "1", 10)
	bread := s.seedProduct(t, "2", 10)

	w := s.do(t, http.MethodPost, "/orders", s.operator, map[string]interface{}{
		"client_id": clientID,
		"products":  []map[string]interface{}{{"product_id": milk, "quantity": 3}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "Ordem criada com sucesso", created["message"])
	orderID := int64(created["id"].(float64))
	path := "/orders/" + jsonID(orderID)

	require.NoError(t, s.store.Repo().AddProductImage(context.Background(), milk, []byte("png")))

	w = s.do(t, http.MethodGet, path, s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, "Nova", detail["status"])
	products := detail["products"].([]interface{})
	require.Len(t, products, 1)
	line := products[0].(map[string]interface{})
	assert.Equal(t, "Produto 1", line["description"])
	assert.Equal(t, []interface{}{"cG5n"}, line["images"])

	w = s.do(t, http.MethodPut, path, s.operator, map[string]interface{}{
		"status":              "separação",
		"products_to_include": []map[string]interface{}{{"product_id": bread, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)
	assert.Equal(t, "Ordem atualizada com sucesso", updated["message"])
	assert.Equal(t, "Em separação", updated["details"].(map[string]interface{})["status"])

	w = s.do(t, http.MethodDelete, path+"/products/"+jsonID(milk)+"?quantity=5", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Um ou mais produto informado possui quantidade além do disponível na ordem.", decode(t, w)["detail"])

	w = s.do(t, http.MethodPut, path+"/status", s.operator, map[string]string{"status": "Cancelada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, path, s.operator, map[string]interface{}{"status": "cancelada"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ordem cancelada com sucesso.", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, path+"/products", s.operator, map[string]interface{}{"product_id": milk, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Ordem não pode ser alterada. Verifique se a mesma não está cancelada ou entregue.", decode(t, w)["detail"])

	w = s.do(t, http.MethodDelete, path, s.operator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Apenas Admins podem deletar ordens", decode(t, w)["detail"])

	w = s.do(t, http.MethodDelete, path, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ordem deletada com sucesso", decode(t, w)["message"])

	w = s.do(t, http.MethodDelete, path, s.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, path, s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Ordem não localizada", decode(t, w)["detail"])

	p, err := s.store.Repo().GetProduct(context.Background(), milk)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	s := newTestServer(t, nil)
	clientID := s.seedClient(t)
	milk := s.seedProduct(t, "1", 5)

	w := s.do(t, http.MethodPost, "/orders", s.operator, map[string]interface{}{
		"client_id": clientID,
		"products":  []map[string]interface{}{{"product_id": milk, "quantity": 10}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	detail := decode(t, w)["detail"].(map[string]interface{})
	assert.Equal(t, "Um ou mais produtos não possui estoque sucifiente", detail["message"])
	items := detail["details"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, float64(milk), item["product_id"])
	assert.Equal(t, float64(5), item["stock"])
	assert.Equal(t, float64(10), item["requested"])
	assert.Equal(t, float64(-5), item["delta"])

	w = s.do(t, http.MethodPost, "/orders", s.operator, map[string]interface{}{
		"client_id": clientID,
		"products":  []map[string]interface{}{{"product_id": 999, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Um ou mais produtos não localizado", decode(t, w)["detail"])
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/orders", s.operator, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/orders?start_date=2024-01-01", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Data de início inválida", decode(t, w)["detail"])

	w = s.do(t, http.MethodGet, "/orders?offset=-1", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	clientID := s.seedClient(t)
	milk := s.seedProduct(t, "1", 5)
	w = s.do(t, http.MethodPost, "/orders", s.operator, map[string]interface{}{
		"client_id": clientID,
		"products":  []map[string]interface{}{{"product_id": milk, "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/orders?section=bebidas&client_id="+jsonID(clientID), s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)
}

func TestProductRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]interface{}{
		"description":     "Detergente",
		"sell_value":      "2.99",
		"barcode":         "789",
		"section_id":      3,
		"stock":           4,
		"expiration_date": "01/02/2030",
	}

	w := s.do(t, http.MethodPost, "/products", s.operator, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Apenas Admins podem adicionar produtos", decode(t, w)["detail"])

	w = s.do(t, http.MethodPost, "/products", s.admin, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "Produto cadastrado com sucesso", created["message"])
	details := created["details"].(map[string]interface{})
	assert.Equal(t, "Limpeza", details["section_name"])
	assert.Equal(t, "2030-02-01", details["expiration_date"])

	w = s.do(t, http.MethodGet, "/products?category=limpeza&available=true", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/products?category=bebidas", s.operator, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/products/999", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Produto não localizado", decode(t, w)["detail"])

	w = s.do(t, http.MethodPut, "/products/999", s.admin, map[string]interface{}{"stock": 1})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/products/999", s.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/products/abc", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/clients", s.operator, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/clients", s.operator, map[string]string{"name": "Ana", "email": "ana@mail.com", "cpf": "52998224725"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "Cliente cadastrado com sucesso", created["message"])
	path := "/clients/" + jsonID(int64(created["id"].(float64)))

	w = s.do(t, http.MethodPost, "/clients", s.operator, map[string]string{"name": "Bia", "email": "bia@mail.com", "cpf": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CPF inválido", decode(t, w)["detail"])

	w = s.do(t, http.MethodGet, "/clients?filter=ana", s.operator, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, path, s.operator, map[string]string{"name": "Ana Maria"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, path, s.admin, map[string]string{"name": "Ana Maria"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana Maria", decode(t, w)["detail"].(map[string]interface{})["name"])

	w = s.do(t, http.MethodPut, "/clients/999", s.admin, map[string]string{"name": "X"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/clients/999", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cliente não localizado", decode(t, w)["detail"])

	w = s.do(t, http.MethodDelete, path, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cliente deletado com sucesso", decode(t, w)["message"])
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestCreateOrder_IdempotencyKeyPerUser(t *testing.T) {
	s := newTestServer(t, nil)
	clientID := s.seedClient(t)
	milk := s.seedProduct(t, "1", 10)
	body := map[string]interface{}{
		"client_id": clientID,
		"products":  []map[string]interface{}{{"product_id": milk, "quantity": 1}},
	}
	keyed := map[string]string{"Idempotency-Key": "checkout-1"}

	create := func(token string) int64 {
		w := s.doWithHeaders(t, http.MethodPost, "/orders", token, body, keyed)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return int64(decode(t, w)["id"].(float64))
	}

	first := create(s.operator)
	assert.Equal(t, first, create(s.operator))
	assert.NotEqual(t, first, create(s.admin))

	p, err := s.store.Repo().GetProduct(context.Background(), milk)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)
}
