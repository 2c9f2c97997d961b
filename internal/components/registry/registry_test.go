package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
)

type fakeReader struct {
	objects map[string]*chain.Object
	err     error
	calls   int
}

func (f *fakeReader) GetObject(_ context.Context, id string) (*chain.Object, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.objects[id], nil
}

func (f *fakeReader) GetOwnedObjects(context.Context, string, string) ([]*chain.Object, error) {
	return nil, nil
}

func (f *fakeReader) QueryEvents(context.Context, string, int, bool) ([]chain.Event, error) {
	return nil, nil
}

type fakeExecutor struct {
	res *chain.TxResponse
	err error
	got *chain.Transaction
}

func (f *fakeExecutor) Execute(_ context.Context, tx *chain.Transaction) (*chain.TxResponse, error) {
	f.got = tx
	return f.res, f.err
}

type recordingPublisher struct {
	mu    sync.Mutex
	names []string
}

func (p *recordingPublisher) Publish(_ context.Context, name string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var testDeployment = Deployment{PackageID: "0xpkg", RegistryID: "0xreg", GasBudget: 10_000_000}

func sharedRegistry(fields string) *chain.Object {
	return &chain.Object{
		ObjectID: "0xreg",
		Owner:    &chain.Owner{Kind: chain.OwnerShared, InitialSharedVersion: 1},
		Content:  &chain.Content{DataType: "moveObject", Fields: json.RawMessage(fields)},
	}
}

func TestAssertShared(t *testing.T) {
	tests := []struct {
		name     string
		reader   *fakeReader
		wantKind error
		wantMsg  string
	}{
		{
			name:   "shared",
			reader: &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{}`)}},
		},
		{
			name:     "missing",
			reader:   &fakeReader{objects: map[string]*chain.Object{}},
			wantKind: ErrObjectNotFound,
			wantMsg:  "GlobalRegistry object not found: 0xreg",
		},
		{
			name: "owned",
			reader: &fakeReader{objects: map[string]*chain.Object{
				"0xreg": {ObjectID: "0xreg", Owner: &chain.Owner{Kind: chain.OwnerAddress, Address: "0xa"}},
			}},
			wantKind: ErrNotShared,
			wantMsg:  "Object 0xreg is not a shared object",
		},
		{
			name:     "no owner",
			reader:   &fakeReader{objects: map[string]*chain.Object{"0xreg": {ObjectID: "0xreg"}}},
			wantKind: ErrNotShared,
			wantMsg:  "Object 0xreg is not a shared object",
		},
		{
			name:     "rpc failure",
			reader:   &fakeReader{err: fmt.Errorf("%w: timeout", chain.ErrRPC)},
			wantKind: ErrPrecondition,
			wantMsg:  "Failed to verify GlobalRegistry object: ledger rpc error: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertShared(context.Background(), tt.reader, "0xreg")
			if tt.wantKind == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestBuildCreateCompany(t *testing.T) {
	req := &CreateCompanyRequest{Name: "Acme", Country: "FR", AuthorityLink: "https://x"}
	tx := BuildCreateCompany(req, "0xwallet", testDeployment)

	if tx.Sender != "0xwallet" || tx.GasBudget != testDeployment.GasBudget {
		t.Errorf("unexpected header %+v", tx)
	}
	if tx.MoveCall.Target != "0xpkg::registry::create_company" {
		t.Errorf("unexpected target %s", tx.MoveCall.Target)
	}
	args := tx.MoveCall.Arguments
	if len(args) != 4 {
		t.Fatalf("expected 4 arguments, got %d", len(args))
	}
	if args[0].Kind != chain.ArgObject || args[0].ObjectID != "0xreg" {
		t.Errorf("first argument must be the registry object, got %+v", args[0])
	}
	for i, want := range []string{"Acme", "FR", "https://x"} {
		a := args[i+1]
		if a.Kind != chain.ArgPure || a.Type != "vector<u8>" || string(a.Value) != want {
			t.Errorf("argument %d = %+v, want pure %q", i+1, a, want)
		}
	}
}

func TestBuildRegister(t *testing.T) {
	tx := BuildRegister(&RegisterRequest{Name: "Port Authority"}, "0xw", testDeployment)
	if tx.MoveCall.Target != "0xpkg::registry::register_aor" || len(tx.MoveCall.Arguments) != 2 {
		t.Fatalf("unexpected call %+v", tx.MoveCall)
	}
	if string(tx.MoveCall.Arguments[1].Value) != "Port Authority" {
		t.Errorf("unexpected name bytes %v", tx.MoveCall.Arguments[1].Value)
	}
}

func TestParseRegister(t *testing.T) {
	res := &chain.TxResponse{
		Digest: "D",
		Events: []chain.Event{
			{Type: "0x2::coin::Other", ParsedJSON: json.RawMessage(`{}`)},
			{Type: "0xpkg::registry::AoRRegistered", ParsedJSON: json.RawMessage(`{"admin":"0xa","name":[84,97,110]}`)},
		},
	}
	got, err := ParseRegister(res)
	if err != nil {
		t.Fatal(err)
	}
	if *got != (RegisterResult{Admin: "0xa", Name: "Tan", TxDigest: "D"}) {
		t.Errorf("unexpected result %+v", got)
	}

	_, err = ParseRegister(&chain.TxResponse{Digest: "D"})
	if !errors.Is(err, ErrEventMissing) || err.Error() != "AoRRegistered event missing from tx response" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParseCreateCompany(t *testing.T) {
	res := &chain.TxResponse{
		Digest: "D2",
		Events: []chain.Event{{
			Type: "0xpkg::registry::CompanyCreated",
			ParsedJSON: json.RawMessage(`{"company_id":"0xc","badge_id":{"id":"0xb"},"aor_admin":"0xa",
				"company_name":{"vec":[65,99,109,101]},"badge_number":[66,45,48,48,55]}`),
		}},
	}
	got, err := ParseCreateCompany(res)
	if err != nil {
		t.Fatal(err)
	}
	want := CreateCompanyResult{
		CompanyID: "0xc", BadgeID: "0xb", AoRAdmin: "0xa",
		CompanyName: "Acme", BadgeNumber: "B-007", TxDigest: "D2",
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	_, err = ParseCreateCompany(&chain.TxResponse{Events: []chain.Event{{Type: "0xpkg::registry::AoRRegistered"}}})
	if err == nil || err.Error() != "CompanyCreated event missing from tx response" {
		t.Errorf("unexpected error %v", err)
	}
}

func postJSON(path, body, wallet string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req = req.WithContext(appctx.WithWallet(req.Context(), wallet))
	}
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) api.ErrorDetail {
	t.Helper()
	var env api.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env.Error
}

func TestHandleRegisterAoR(t *testing.T) {
	okReader := func() *fakeReader {
		return &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{}`)}}
	}
	okExec := func() *fakeExecutor {
		return &fakeExecutor{res: &chain.TxResponse{
			Digest: "D",
			Events: []chain.Event{{Type: "0xpkg::registry::AoRRegistered", ParsedJSON: json.RawMessage(`{"admin":"0xw","name":{"vec":[84,97,110]}}`)}},
		}}
	}

	tests := []struct {
		name       string
		body       string
		wallet     string
		deployment Deployment
		reader     *fakeReader
		exec       *fakeExecutor
		wantStatus int
		wantReason string
		wantMsg    string
		wantRPC    bool
		wantExec   bool
	}{
		{
			name: "success", body: `{"name":"Tan"}`, wallet: "0xw",
			deployment: testDeployment, reader: okReader(), exec: okExec(),
			wantStatus: http.StatusOK, wantRPC: true,
		},
		{
			name: "unauthenticated", body: `{"name":"Tan"}`,
			deployment: testDeployment, reader: okReader(), exec: okExec(),
			wantStatus: http.StatusUnauthorized, wantReason: api.ReasonUnauthenticated,
		},
		{
			name: "missing name", body: `{}`, wallet: "0xw",
			deployment: testDeployment, reader: okReader(), exec: okExec(),
			wantStatus: http.StatusBadRequest, wantReason: api.ReasonValidationFailed, wantMsg: "name is required",
		},
		{
			name: "non-string name", body: `{"name":42}`, wallet: "0xw",
			deployment: testDeployment, reader: okReader(), exec: okExec(),
			wantStatus: http.StatusBadRequest, wantReason: api.ReasonValidationFailed,
		},
		{
			name: "registry not configured", body: `{"name":"Tan"}`, wallet: "0xw",
			deployment: Deployment{PackageID: "0xpkg"}, reader: okReader(), exec: okExec(),
			wantStatus: http.StatusInternalServerError, wantReason: api.ReasonNotConfigured,
		},
		{
			name: "registry not shared", body: `{"name":"Tan"}`, wallet: "0xw",
			deployment: testDeployment,
			reader: &fakeReader{objects: map[string]*chain.Object{
				"0xreg": {ObjectID: "0xreg", Owner: &chain.Owner{Kind: chain.OwnerImmutable}},
			}},
			exec:       okExec(),
			wantStatus: http.StatusBadRequest, wantReason: api.ReasonPreconditionFailed,
			wantMsg: "Object 0xreg is not a shared object", wantRPC: true,
		},
		{
			name: "sponsor failure", body: `{"name":"Tan"}`, wallet: "0xw",
			deployment: testDeployment, reader: okReader(),
			exec:       &fakeExecutor{err: fmt.Errorf("%w: relay returned 502", chain.ErrSponsor)},
			wantStatus: http.StatusInternalServerError, wantReason: api.ReasonExternalServiceError,
			wantRPC: true, wantExec: true,
		},
		{
			name: "event missing", body: `{"name":"Tan"}`, wallet: "0xw",
			deployment: testDeployment, reader: okReader(),
			exec:       &fakeExecutor{res: &chain.TxResponse{Digest: "D"}},
			wantStatus: http.StatusInternalServerError, wantReason: api.ReasonInternalError,
			wantMsg: "AoRRegistered event missing from tx response", wantRPC: true, wantExec: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			h := NewHandler(tt.reader, tt.exec, tt.deployment, pub, nil)
			w := httptest.NewRecorder()
			h.HandleRegisterAoR(w, postJSON("/api/register-aor", tt.body, tt.wallet))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if (tt.reader.calls > 0) != tt.wantRPC && tt.wantStatus != http.StatusOK {
				t.Errorf("ledger called = %v, want %v", tt.reader.calls > 0, tt.wantRPC)
			}
			if tt.wantStatus == http.StatusOK {
				var got RegisterResult
				json.NewDecoder(w.Body).Decode(&got)
				if got != (RegisterResult{Admin: "0xw", Name: "Tan", TxDigest: "D"}) {
					t.Errorf("unexpected result %+v", got)
				}
				if tt.exec.got.Sender != "0xw" {
					t.Errorf("transaction sender = %q", tt.exec.got.Sender)
				}
				if len(pub.names) != 1 || pub.names[0] != events.AoRRegistered {
					t.Errorf("published %v", pub.names)
				}
				return
			}
			if len(pub.names) != 0 {
				t.Errorf("no event expected on failure, got %v", pub.names)
			}
			if (tt.exec.got != nil) != tt.wantExec {
				t.Errorf("executor called = %v, want %v", tt.exec.got != nil, tt.wantExec)
			}
			detail := decodeEnvelope(t, w)
			if detail.ReasonCode != tt.wantReason {
				t.Errorf("reason = %q, want %q", detail.ReasonCode, tt.wantReason)
			}
			if tt.wantMsg != "" && detail.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", detail.Message, tt.wantMsg)
			}
		})
	}
}

func TestHandleCreateCompany(t *testing.T) {
	reader := &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{}`)}}
	exec := &fakeExecutor{res: &chain.TxResponse{
		Digest: "D3",
		Events: []chain.Event{{
			Type:       "0xpkg::registry::CompanyCreated",
			ParsedJSON: json.RawMessage(`{"company_id":"0xc","badge_id":"0xb","aor_admin":"0xw","company_name":[65],"badge_number":{"vec":[49]}}`),
		}},
	}}
	pub := &recordingPublisher{}
	h := NewHandler(reader, exec, testDeployment, pub, nil)

	w := httptest.NewRecorder()
	h.HandleCreateCompany(w, postJSON("/api/create-company", `{"name":"A","country":"FR"}`, "0xw"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing authority_link: status %d", w.Code)
	}
	if reader.calls != 0 {
		t.Error("validation must run before any ledger call")
	}

	w = httptest.NewRecorder()
	h.HandleCreateCompany(w, postJSON("/api/create-company", `{"name":"A","country":"FR","authority_link":"https://a"}`, "0xw"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var got CreateCompanyResult
	json.NewDecoder(w.Body).Decode(&got)
	if got.CompanyID != "0xc" || got.CompanyName != "A" || got.BadgeNumber != "1" || got.TxDigest != "D3" {
		t.Errorf("unexpected result %+v", got)
	}
	if len(pub.names) != 1 || pub.names[0] != events.CompanyCreated {
		t.Errorf("published %v", pub.names)
	}
}

func TestHandleRegisterAoR_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeReader{}, &fakeExecutor{}, testDeployment, nil, nil)
	w := httptest.NewRecorder()
	h.HandleRegisterAoR(w, httptest.NewRequest(http.MethodGet, "/api/register-aor", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		deployment Deployment
		reader     *fakeReader
		wantStatus int
		want       *Status
	}{
		{
			name: "unregistered", method: http.MethodGet, deployment: testDeployment,
			reader:     &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{"aor_admin":{"vec":[]},"aor_name":{"vec":[]}}`)}},
			wantStatus: http.StatusOK,
			want:       &Status{RegistryID: "0xreg"},
		},
		{
			name: "registered", method: http.MethodGet, deployment: testDeployment,
			reader:     &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{"aor_admin":"0xA","aor_name":[84,97,110]}`)}},
			wantStatus: http.StatusOK,
			want:       &Status{IsRegistered: true, Admin: ptr("0xA"), Name: ptr("Tan"), RegistryID: "0xreg"},
		},
		{
			name: "registered without name", method: http.MethodGet, deployment: testDeployment,
			reader:     &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{"aor_admin":{"vec":["0xA"]},"aor_name":[]}`)}},
			wantStatus: http.StatusOK,
			want:       &Status{IsRegistered: true, Admin: ptr("0xA"), RegistryID: "0xreg"},
		},
		{
			name: "wrong method", method: http.MethodPost, deployment: testDeployment,
			reader: &fakeReader{}, wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name: "not configured", method: http.MethodGet, deployment: Deployment{},
			reader: &fakeReader{}, wantStatus: http.StatusInternalServerError,
		},
		{
			name: "not found", method: http.MethodGet, deployment: testDeployment,
			reader: &fakeReader{objects: map[string]*chain.Object{}}, wantStatus: http.StatusNotFound,
		},
		{
			name: "not a move object", method: http.MethodGet, deployment: testDeployment,
			reader:     &fakeReader{objects: map[string]*chain.Object{"0xreg": {ObjectID: "0xreg", Content: &chain.Content{DataType: "package"}}}},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "rpc failure", method: http.MethodGet, deployment: testDeployment,
			reader: &fakeReader{err: chain.ErrRPC}, wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.reader, &fakeExecutor{}, tt.deployment, nil, nil)
			w := httptest.NewRecorder()
			h.HandleStatus(w, httptest.NewRequest(tt.method, "/api/registry-status", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.want == nil {
				return
			}
			var got Status
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.IsRegistered != tt.want.IsRegistered || got.RegistryID != tt.want.RegistryID ||
				deref(got.Admin) != deref(tt.want.Admin) || deref(got.Name) != deref(tt.want.Name) ||
				(got.Name == nil) != (tt.want.Name == nil) || (got.Admin == nil) != (tt.want.Admin == nil) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleStatus_NullsInBody(t *testing.T) {
	reader := &fakeReader{objects: map[string]*chain.Object{"0xreg": sharedRegistry(`{"aor_admin":null}`)}}
	h := NewHandler(reader, &fakeExecutor{}, testDeployment, nil, nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/registry-status", nil))

	want := `{"isRegistered":false,"admin":null,"name":null,"registryId":"0xreg"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
