package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/socialwall/internal/broker"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
	"example.com/socialwall/internal/store"
	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

//
// --- Setup test server ---
//

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.MockStore
	files *storage.MockStorage
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	mockStore := store.NewMock()
	mockFiles := storage.NewMock()
	hub := broker.NewHub()

	s := New(Deps{
		Store:         mockStore,
		Publisher:     broker.LocalPublisher{Hub: hub},
		Hub:           hub,
		Storage:       mockFiles,
		JWTSecret:     "test-secret",
		ProfileBucket: "profile-images",
		PhotoBucket:   "user-images",
	})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{srv: s, ts: ts, store: mockStore, files: mockFiles}
}

//
// --- Helpers ---
//

// do sends a request with an optional JSON body and bearer token and checks the status.
func do(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return check(t, req, expectedStatus)
}

func check(t *testing.T, req *http.Request, expectedStatus int) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", req.Method, req.URL.Path, expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

// multipartRequest builds a form with fields and one optional file part.
func multipartRequest(t *testing.T, method, url string, fields map[string]string, fileField, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(600, 600, color.White), imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// hugePNGHeader declares a 12000x12000 grayscale PNG without its pixel data.
func hugePNGHeader() []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := []byte("IHDR")
	ihdr = binary.BigEndian.AppendUint32(ihdr, 12000)
	ihdr = binary.BigEndian.AppendUint32(ihdr, 12000)
	ihdr = append(ihdr, 8, 0, 0, 0, 0)
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr))
	return buf.Bytes()
}

//
// --- Tests ---
//

// unknown name -> info form -> wall
func TestSessionAndInfoFlow(t *testing.T) {
	env := setupTestServer(t)

	first := decode[map[string]any](t, do(t, http.MethodPost, env.ts.URL+"/session", map[string]string{"user": "almaz"}, "", http.StatusOK))
	if first["needs_info"] != true {
		t.Fatalf("expected needs_info for a new name, got %v", first)
	}
	token, _ := first["token"].(string)
	if token == "" {
		t.Fatal("expected a token")
	}

	do(t, http.MethodGet, env.ts.URL+"/users/info", nil, token, http.StatusNotFound)
	do(t, http.MethodPost, env.ts.URL+"/users/info", map[string]string{"location": "Almaty"}, token, http.StatusOK)

	second := decode[map[string]any](t, do(t, http.MethodPost, env.ts.URL+"/session", map[string]string{"user": "almaz"}, "", http.StatusOK))
	if second["needs_info"] != false {
		t.Fatalf("expected returning name to skip the form, got %v", second)
	}

	info := decode[models.UserInfo](t, do(t, http.MethodGet, env.ts.URL+"/users/info", nil, token, http.StatusOK))
	if models.Deref(info.Location) != "Almaty" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestSession_EmptyName(t *testing.T) {
	env := setupTestServer(t)
	do(t, http.MethodPost, env.ts.URL+"/session", map[string]string{"user": "  "}, "", http.StatusBadRequest)
}

func TestPostsFlow(t *testing.T) {
	env := setupTestServer(t)

	do(t, http.MethodPost, env.ts.URL+"/posts?user=nur", map[string]string{"message": "first"}, "", http.StatusCreated)
	created := decode[models.Post](t, do(t, http.MethodPost, env.ts.URL+"/posts?user=nur", map[string]string{"message": "  second  "}, "", http.StatusCreated))
	if created.Message != "second" || created.UserID != "nur" {
		t.Fatalf("unexpected post: %+v", created)
	}

	posts := decode[[]models.Post](t, do(t, http.MethodGet, env.ts.URL+"/posts?user=almaz", nil, "", http.StatusOK))
	if len(posts) != 2 || posts[0].Message != "second" {
		t.Fatalf("expected newest first, got %+v", posts)
	}

	count := decode[map[string]any](t, do(t, http.MethodGet, env.ts.URL+"/posts/count?user=almaz&author=nur", nil, "", http.StatusOK))
	if count["posts"] != float64(2) {
		t.Fatalf("unexpected count: %v", count)
	}
}

func TestPosts_Rejections(t *testing.T) {
	env := setupTestServer(t)

	do(t, http.MethodPost, env.ts.URL+"/posts", map[string]string{"message": "hi"}, "", http.StatusUnauthorized)
	do(t, http.MethodPost, env.ts.URL+"/posts?user=nur", map[string]string{"message": "   "}, "", http.StatusBadRequest)
	do(t, http.MethodPost, env.ts.URL+"/posts?user=nur", map[string]string{"message": strings.Repeat("x", 281)}, "", http.StatusBadRequest)

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/posts?user=nur", strings.NewReader(`{"message":123}`))
	check(t, req, http.StatusBadRequest)

	if len(env.store.Posts) != 0 {
		t.Fatalf("rejected posts must not be stored, got %d", len(env.store.Posts))
	}
}

func TestBackendErrorIsGeneric(t *testing.T) {
	env := setupTestServer(t)
	env.store.ShouldFail = true

	resp := do(t, http.MethodGet, env.ts.URL+"/posts?user=nur", nil, "", http.StatusInternalServerError)
	body := decode[map[string]string](t, resp)
	if body["error"] != "backend error" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)
	do(t, http.MethodGet, env.ts.URL+"/healthz", nil, "", http.StatusOK)

	env.store.ShouldFail = true
	do(t, http.MethodGet, env.ts.URL+"/healthz", nil, "", http.StatusServiceUnavailable)
}

// post listing -> search -> inquiry -> seller inbox
func TestMarketplaceFlow(t *testing.T) {
	env := setupTestServer(t)

	fields := map[string]string{
		"title":        "Road bike",
		"description":  "Barely used",
		"price":        "250",
		"category":     "Sports",
		"condition":    "Like New",
		"seller_email": "sam@example.com",
	}
	req := multipartRequest(t, http.MethodPost, env.ts.URL+"/marketplace/items?user=sam", fields, "image", "bike.png", pngBytes(t))
	item := decode[models.MarketplaceItem](t, check(t, req, http.StatusCreated))
	if item.ImageURL == nil || !strings.Contains(*item.ImageURL, "/user-images/marketplace/sam/") {
		t.Fatalf("expected an image under the seller's marketplace prefix, got %+v", item.ImageURL)
	}

	// without an image
	req = multipartRequest(t, http.MethodPost, env.ts.URL+"/marketplace/items?user=sam",
		map[string]string{"title": "Desk", "price": "40", "category": "Furniture", "seller_email": "sam@example.com"}, "", "", nil)
	check(t, req, http.StatusCreated)

	found := decode[[]models.MarketplaceItem](t, do(t, http.MethodGet, env.ts.URL+"/marketplace/items?user=bob&q=BIKE&min_price=100", nil, "", http.StatusOK))
	if len(found) != 1 || found[0].ID != item.ID {
		t.Fatalf("unexpected search result: %+v", found)
	}
	none := decode[[]models.MarketplaceItem](t, do(t, http.MethodGet, env.ts.URL+"/marketplace/items?user=bob&category=Books", nil, "", http.StatusOK))
	if len(none) != 0 {
		t.Fatalf("expected no books, got %+v", none)
	}
	do(t, http.MethodGet, env.ts.URL+"/marketplace/items?user=bob&max_price=abc", nil, "", http.StatusBadRequest)

	itemURL := env.ts.URL + "/marketplace/items/" + jsonInt(item.ID)
	do(t, http.MethodGet, itemURL+"?user=bob", nil, "", http.StatusOK)
	do(t, http.MethodPost, itemURL+"/inquiries?user=bob", map[string]string{"message": "Still available?"}, "", http.StatusCreated)

	inbox := decode[[]models.Message](t, do(t, http.MethodGet, env.ts.URL+"/messages?user=sam", nil, "", http.StatusOK))
	if len(inbox) != 1 || inbox[0].Subject != "Inquiry about: Road bike" || inbox[0].IsRead {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
	if inbox[0].Item == nil || inbox[0].Item.Title != "Road bike" {
		t.Fatalf("expected item summary on message, got %+v", inbox[0].Item)
	}

	sent := decode[[]models.Message](t, do(t, http.MethodGet, env.ts.URL+"/messages?user=bob&box=sent", nil, "", http.StatusOK))
	if len(sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(sent))
	}

	// marking read is asynchronous
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		unread := decode[map[string]int](t, do(t, http.MethodGet, env.ts.URL+"/messages/unread?user=sam", nil, "", http.StatusOK))
		if unread["unread"] == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected inbox to be marked read")
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestMarketplace_BadRequests(t *testing.T) {
	env := setupTestServer(t)

	do(t, http.MethodGet, env.ts.URL+"/marketplace/items/abc?user=bob", nil, "", http.StatusBadRequest)
	do(t, http.MethodGet, env.ts.URL+"/marketplace/items/42?user=bob", nil, "", http.StatusNotFound)
	do(t, http.MethodPost, env.ts.URL+"/marketplace/items/42/inquiries?user=bob", map[string]string{"message": "hi"}, "", http.StatusNotFound)
	do(t, http.MethodGet, env.ts.URL+"/messages?user=bob&box=trash", nil, "", http.StatusBadRequest)

	req := multipartRequest(t, http.MethodPost, env.ts.URL+"/marketplace/items?user=sam",
		map[string]string{"title": "Desk", "price": "-1", "seller_email": "sam@example.com"}, "", "", nil)
	check(t, req, http.StatusBadRequest)

	catalog := decode[map[string][]string](t, do(t, http.MethodGet, env.ts.URL+"/marketplace/catalog", nil, "", http.StatusOK))
	if len(catalog["categories"]) != 9 || len(catalog["conditions"]) != 5 {
		t.Fatalf("unexpected catalog: %v", catalog)
	}
}

func TestUploadFailureAbortsListing(t *testing.T) {
	env := setupTestServer(t)
	env.files.ShouldFail = true

	req := multipartRequest(t, http.MethodPost, env.ts.URL+"/marketplace/items?user=sam",
		map[string]string{"title": "Lamp", "price": "5", "seller_email": "sam@example.com"}, "image", "lamp.jpg", []byte("jpeg"))
	check(t, req, http.StatusInternalServerError)
	if len(env.store.Items) != 0 {
		t.Fatal("listing must not be inserted when the upload fails")
	}
}

func TestProfileImageAndPhotos(t *testing.T) {
	env := setupTestServer(t)

	empty := decode[map[string]*string](t, do(t, http.MethodGet, env.ts.URL+"/profile/image?user=almaz", nil, "", http.StatusOK))
	if empty["url"] != nil {
		t.Fatalf("expected no profile image, got %v", *empty["url"])
	}

	req := multipartRequest(t, http.MethodPut, env.ts.URL+"/profile/image?user=almaz", nil, "file", "me.png", pngBytes(t))
	check(t, req, http.StatusOK)
	got := decode[map[string]*string](t, do(t, http.MethodGet, env.ts.URL+"/profile/image?user=almaz", nil, "", http.StatusOK))
	if got["url"] == nil || !strings.Contains(*got["url"], "almaz/profile.jpg?v=") {
		t.Fatalf("unexpected profile url: %v", got["url"])
	}

	req = multipartRequest(t, http.MethodPut, env.ts.URL+"/profile/image?user=almaz", nil, "file", "notes.txt", []byte("plain text"))
	check(t, req, http.StatusBadRequest)
	req = multipartRequest(t, http.MethodPut, env.ts.URL+"/profile/image?user=almaz", nil, "file", "huge.png", hugePNGHeader())
	check(t, req, http.StatusBadRequest)
	req = multipartRequest(t, http.MethodPost, env.ts.URL+"/photos?user=almaz", nil, "", "", nil)
	check(t, req, http.StatusBadRequest)

	req = multipartRequest(t, http.MethodPost, env.ts.URL+"/photos?user=almaz", nil, "file", "beach.jpg", []byte("jpeg"))
	check(t, req, http.StatusCreated)
	photos := decode[[]map[string]any](t, do(t, http.MethodGet, env.ts.URL+"/photos?user=almaz", nil, "", http.StatusOK))
	if len(photos) != 1 {
		t.Fatalf("expected one photo, got %v", photos)
	}
}

func TestLiveFeed_PushesFullListOnChange(t *testing.T) {
	env := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/posts/live?user=viewer"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial []models.Post
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial list: %v", err)
	}
	if len(initial) != 0 {
		t.Fatalf("expected empty wall, got %+v", initial)
	}

	do(t, http.MethodPost, env.ts.URL+"/posts?user=nur", map[string]string{"message": "live!"}, "", http.StatusCreated)

	var update []models.Post
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(update) != 1 || update[0].Message != "live!" {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestLiveFeed_RequiresUser(t *testing.T) {
	env := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/posts/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}
