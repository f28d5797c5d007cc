package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sweetshop/internal/db"
	"github.com/erazemk/sweetshop/internal/store"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	db *sqlx.DB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, Options{JWTSecret: testJWTSecret, RateLimit: 100, RateBurst: 100})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, db: database}
}

// signup creates an account and returns its token and user id.
func (s *testServer) signup(t *testing.T, email string) (string, int64) {
	t.Helper()
	resp := s.do(t, "POST", "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d", email, resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	decode(t, resp, &body)
	if body.Token == "" {
		t.Fatal("empty token from signup")
	}
	return body.Token, body.User.ID
}

// admin signs up a user and grants it admin directly in the store.
func (s *testServer) admin(t *testing.T, email string) string {
	t.Helper()
	token, id := s.signup(t, email)
	if _, err := store.SetAdmin(context.Background(), s.db, id, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decode(t, resp, &body)
	return body["error"]
}

type sweetJSON struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       string  `json:"price"`
	Quantity    int     `json:"quantity"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (s *testServer) createSweet(t *testing.T, token string, body map[string]any) sweetJSON {
	t.Helper()
	resp := s.do(t, "POST", "/api/sweets", token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sweet: expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		Sweet sweetJSON `json:"sweet"`
	}
	decode(t, resp, &out)
	return out.Sweet
}

func fudge() map[string]any {
	return map[string]any{"name": "Fudge", "category": "Chocolate", "price": 5.00, "quantity": 10}
}

func TestSignupAndSignin(t *testing.T) {
	s := setupTestServer(t)
	s.signup(t, "alice@example.com")

	resp := s.do(t, "POST", "/api/auth/signup", "", map[string]string{"email": "alice@example.com", "password": "password123"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}

	resp = s.do(t, "POST", "/api/auth/signup", "", map[string]string{"email": "bob@example.com", "password": "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for short password, got %d", resp.StatusCode)
	}

	resp = s.do(t, "POST", "/api/auth/signup", "", map[string]string{"email": "not-an-email", "password": "password123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", resp.StatusCode)
	}

	resp = s.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	resp = s.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": "ALICE@example.com", "password": "password123"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for valid sign-in, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := setupTestServer(t)
	token, _ := s.signup(t, "alice@example.com")

	if resp := s.do(t, "GET", "/api/user/role", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", resp.StatusCode)
	}
	if resp := s.do(t, "POST", "/api/auth/logout", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", resp.StatusCode)
	}
	if resp := s.do(t, "GET", "/api/user/role", token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestSigninRateLimited(t *testing.T) {
	database := db.NewTestDB(t)
	server := httptest.NewServer(NewRouter(database, Options{JWTSecret: testJWTSecret, RateLimit: 0.01, RateBurst: 2}))
	t.Cleanup(server.Close)
	s := &testServer{Server: server, db: database}

	var last int
	for i := 0; i < 3; i++ {
		resp := s.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": "a@example.com", "password": "password123"})
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", last)
	}
}

func TestSweetsPublicReads(t *testing.T) {
	s := setupTestServer(t)
	token, _ := s.signup(t, "alice@example.com")

	s.createSweet(t, token, fudge())
	s.createSweet(t, token, map[string]any{"name": "Gummy Bear", "category": "Gummies", "price": "0.75", "quantity": 100})

	resp := s.do(t, "GET", "/api/sweets?category=chocolate", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Sweets []sweetJSON `json:"sweets"`
	}
	decode(t, resp, &list)
	if len(list.Sweets) != 1 || list.Sweets[0].Name != "Fudge" {
		t.Errorf("expected only Fudge, got %+v", list.Sweets)
	}

	resp = s.do(t, "GET", "/api/sweets?minPrice=abc", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad minPrice, got %d", resp.StatusCode)
	}

	resp = s.do(t, "GET", "/api/sweets/999", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Sweet not found" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestCreateAndUpdateSweet(t *testing.T) {
	s := setupTestServer(t)
	token, _ := s.signup(t, "alice@example.com")

	if resp := s.do(t, "POST", "/api/sweets", "", fudge()); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp := s.do(t, "POST", "/api/sweets", token, map[string]any{"name": "Fudge", "category": "Chocolate", "price": -1, "quantity": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for negative price, got %d", resp.StatusCode)
	}
	resp = s.do(t, "POST", "/api/sweets", token, map[string]any{"name": "Fudge"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", resp.StatusCode)
	}

	created := s.createSweet(t, token, fudge())

	resp = s.do(t, "PUT", "/api/sweets/"+itoa(created.ID), token, map[string]any{"description": "Extra creamy"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Sweet sweetJSON `json:"sweet"`
	}
	decode(t, resp, &out)
	if out.Sweet.Description == nil || *out.Sweet.Description != "Extra creamy" {
		t.Errorf("expected description to change, got %v", out.Sweet.Description)
	}
	if out.Sweet.Name != "Fudge" || out.Sweet.Quantity != 10 || out.Sweet.Price != created.Price {
		t.Errorf("unsupplied fields changed: %+v", out.Sweet)
	}

	resp = s.do(t, "PUT", "/api/sweets/"+itoa(created.ID), token, map[string]any{"description": nil})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 clearing description, got %d", resp.StatusCode)
	}
	out.Sweet = sweetJSON{}
	decode(t, resp, &out)
	if out.Sweet.Description != nil {
		t.Errorf("expected description to be cleared, got %q", *out.Sweet.Description)
	}

	resp = s.do(t, "PUT", "/api/sweets/"+itoa(created.ID), token, map[string]any{"name": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", resp.StatusCode)
	}

	resp = s.do(t, "PUT", "/api/sweets/"+itoa(created.ID), token, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty update, got %d", resp.StatusCode)
	}
	resp = s.do(t, "PUT", "/api/sweets/999", token, map[string]any{"name": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAdminOnlyEndpoints(t *testing.T) {
	s := setupTestServer(t)
	customer, _ := s.signup(t, "customer@example.com")
	admin := s.admin(t, "admin@example.com")

	sweet := s.createSweet(t, customer, fudge())
	path := "/api/sweets/" + itoa(sweet.ID)

	resp := s.do(t, "POST", path+"/restock", customer, map[string]int{"quantity": 5})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 restock for non-admin, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Forbidden: Admin access required" {
		t.Errorf("unexpected message %q", msg)
	}

	resp = s.do(t, "GET", path, "", nil)
	var got struct {
		Sweet sweetJSON `json:"sweet"`
	}
	decode(t, resp, &got)
	if got.Sweet.Quantity != 10 {
		t.Errorf("expected quantity unchanged at 10, got %d", got.Sweet.Quantity)
	}

	resp = s.do(t, "POST", path+"/restock", admin, map[string]int{"quantity": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for zero restock, got %d", resp.StatusCode)
	}

	resp = s.do(t, "POST", path+"/restock", admin, map[string]int{"quantity": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 restock, got %d", resp.StatusCode)
	}
	decode(t, resp, &got)
	if got.Sweet.Quantity != 15 {
		t.Errorf("expected 15 after restock, got %d", got.Sweet.Quantity)
	}

	if resp := s.do(t, "DELETE", path, customer, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 delete for non-admin, got %d", resp.StatusCode)
	}
	resp = s.do(t, "DELETE", path, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 delete, got %d", resp.StatusCode)
	}
	var deleted struct {
		Message string    `json:"message"`
		Sweet   sweetJSON `json:"sweet"`
	}
	decode(t, resp, &deleted)
	if deleted.Sweet.ID != sweet.ID || deleted.Message == "" {
		t.Errorf("unexpected delete response %+v", deleted)
	}
	if resp := s.do(t, "DELETE", path, admin, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 second delete, got %d", resp.StatusCode)
	}
}

func TestPurchaseFlow(t *testing.T) {
	s := setupTestServer(t)
	token, userID := s.signup(t, "alice@example.com")
	sweet := s.createSweet(t, token, fudge())
	path := "/api/sweets/" + itoa(sweet.ID) + "/purchase"

	if resp := s.do(t, "POST", path, "", map[string]int{"quantity": 1}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	for _, body := range []any{map[string]int{"quantity": 0}, map[string]int{"quantity": -2}, map[string]string{"quantity": "x"}} {
		if resp := s.do(t, "POST", path, token, body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if resp := s.do(t, "POST", "/api/sweets/999/purchase", token, map[string]int{"quantity": 1}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp := s.do(t, "POST", path, token, map[string]int{"quantity": 11})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 insufficient stock, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "Insufficient stock. Only 10 available." {
		t.Errorf("unexpected message %q", msg)
	}

	resp = s.do(t, "POST", path, token, map[string]int{"quantity": 4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Message  string    `json:"message"`
		Sweet    sweetJSON `json:"sweet"`
		Purchase struct {
			UserID     int64  `json:"user_id"`
			SweetID    int64  `json:"sweet_id"`
			Quantity   int    `json:"quantity"`
			TotalPrice string `json:"total_price"`
		} `json:"purchase"`
	}
	decode(t, resp, &out)
	if out.Sweet.Quantity != 6 {
		t.Errorf("expected 6 left, got %d", out.Sweet.Quantity)
	}
	if out.Purchase.UserID != userID || out.Purchase.SweetID != sweet.ID || out.Purchase.Quantity != 4 || out.Purchase.TotalPrice != "20" {
		t.Errorf("unexpected purchase %+v", out.Purchase)
	}

	resp = s.do(t, "GET", "/api/purchases", token, nil)
	var mine struct {
		Purchases []json.RawMessage `json:"purchases"`
	}
	decode(t, resp, &mine)
	if len(mine.Purchases) != 1 {
		t.Errorf("expected 1 own purchase, got %d", len(mine.Purchases))
	}

	if resp := s.do(t, "GET", "/api/sweets/"+itoa(sweet.ID)+"/purchases", token, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin purchase history, got %d", resp.StatusCode)
	}
}

func TestConcurrentPurchasesOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	token, _ := s.signup(t, "alice@example.com")
	sweet := s.createSweet(t, token, fudge())
	path := "/api/sweets/" + itoa(sweet.ID) + "/purchase"

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _ := json.Marshal(map[string]int{"quantity": 6})
			req, _ := http.NewRequest("POST", s.URL+path, bytes.NewReader(data))
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Errorf("purchase: %v", err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, st := range statuses {
		switch st {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected one 200 and one 400, got %v", statuses)
	}
}

func TestRoleAndPromote(t *testing.T) {
	s := setupTestServer(t)
	token, userID := s.signup(t, "alice@example.com")

	if resp := s.do(t, "GET", "/api/user/role", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	resp := s.do(t, "GET", "/api/user/role", token, nil)
	var role struct {
		UserID  int64  `json:"userId"`
		IsAdmin bool   `json:"isAdmin"`
		Email   string `json:"email"`
	}
	decode(t, resp, &role)
	if role.UserID != userID || role.IsAdmin || role.Email != "alice@example.com" {
		t.Errorf("unexpected role %+v", role)
	}

	for _, want := range []string{"Successfully promoted to admin", "You are already an admin"} {
		resp := s.do(t, "POST", "/api/admin/promote", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var msg map[string]string
		decode(t, resp, &msg)
		if msg["message"] != want {
			t.Errorf("expected %q, got %q", want, msg["message"])
		}
	}

	resp = s.do(t, "GET", "/api/user/role", token, nil)
	decode(t, resp, &role)
	if !role.IsAdmin {
		t.Error("expected admin after promotion")
	}
}

func TestSweetImage(t *testing.T) {
	s := setupTestServer(t)
	token, _ := s.signup(t, "alice@example.com")
	sweet := s.createSweet(t, token, fudge())
	path := "/api/sweets/" + itoa(sweet.ID) + "/image"

	if resp := s.do(t, "GET", path, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before upload, got %d", resp.StatusCode)
	}

	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	upload := func(data []byte) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("image", "fudge.png")
		fw.Write(data)
		mw.Close()

		req, _ := http.NewRequest("PUT", s.URL+path, &body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := upload([]byte("definitely not an image")); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-image, got %d", resp.StatusCode)
	}

	resp := upload(pngData.Bytes())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 upload, got %d", resp.StatusCode)
	}
	var out struct {
		Sweet sweetJSON `json:"sweet"`
	}
	decode(t, resp, &out)
	if out.Sweet.ImageURL == nil || *out.Sweet.ImageURL != path {
		t.Errorf("expected image_url %q, got %v", path, out.Sweet.ImageURL)
	}

	resp = s.do(t, "GET", path, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 image fetch, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, "GET", "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	req, _ := http.NewRequest("GET", s.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked into the response")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
