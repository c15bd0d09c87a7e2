package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/handlers"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/analysis"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/auth"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/store"
)

var secret = []byte("segredo-de-teste")

const accessKey = "35240112345678000199550010000012341000012345"

const nfeXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe">
  <NFe><infNFe Id="NFe` + accessKey + `">
    <ide><nNF>1234</nNF><serie>1</serie><dhEmi>2024-01-15T10:30:00-03:00</dhEmi></ide>
    <emit><enderEmit><UF>SP</UF></enderEmit></emit>
    <dest><enderDest><UF>RJ</UF></enderDest></dest>
    <det nItem="1">
      <prod><NCM>22030000</NCM><CFOP>6102</CFOP><vProd>1000.00</vProd></prod>
      <imposto><ICMS><ICMS00><CST>00</CST><vBC>1000.00</vBC><pICMS>7.00</pICMS><vICMS>70.00</vICMS></ICMS00></ICMS></imposto>
    </det>
  </infNFe></NFe>
</nfeProc>`

type fakeUsers map[string]*auth.User

func (f fakeUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	if u, ok := f[username]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

func setup(t *testing.T) (*gin.Engine, *store.MemoryRunStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha"), bcrypt.MinCost)
	require.NoError(t, err)
	users := fakeUsers{
		"ana":   {Username: "ana", PasswordHash: string(hash), Roles: []string{auth.RoleAudit}},
		"bruno": {Username: "bruno", PasswordHash: string(hash), Roles: []string{"conversor"}},
	}

	runs := store.NewMemoryRunStore()
	router := NewRouter(Deps{
		Auth:      handlers.NewAuthHandler(auth.NewService(users, secret, time.Hour, nil)),
		Audit:     handlers.NewAuditHandler(analysis.NewService(analysis.Options{Workers: 2}), runs, nil, nil),
		JWTSecret: secret,
	})
	return router, runs
}

func token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	list := make([]interface{}, len(roles))
	for i, r := range roles {
		list[i] = r
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"roles":    list,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return signed
}

// form monta o multipart; as chaves são campo/arquivo.
func form(t *testing.T, files map[[2]string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, content := range files {
		part, err := w.CreateFormFile(k[0], k[1])
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func auditRequest(t *testing.T, path, bearer string, files map[[2]string]string) *http.Request {
	t.Helper()
	body, contentType := form(t, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestLoginRoute(t *testing.T) {
	router, _ := setup(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"sucesso", `{"username":"ana","password":"s3nha"}`, http.StatusOK},
		{"senha errada", `{"username":"ana","password":"x"}`, http.StatusUnauthorized},
		{"sem senha", `{"username":"ana"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				var resp map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp["token"])
			}
		})
	}
}

func TestAuditRequiresPermission(t *testing.T) {
	router, _ := setup(t)
	files := map[[2]string]string{{"xmlSaidas", "a.xml"}: nfeXML}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", "", files))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", token(t, "bruno", "conversor"), files))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditRoute(t *testing.T) {
	router, runs := setup(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", token(t, "ana", auth.RoleAudit), map[[2]string]string{
		{"xmlSaidas[]", "a.xml"}:     nfeXML,
		{"xmlEntradas", "lixo.xml"}:  "não é xml",
		{"regrasIcms", "icms.csv"}:   "NCM;CST;Aliq;CST;Aliq\n22030000;00;18;00;12\n",
		{"statusSaidas", "sit.csv"}:  "Chave;Situação\n" + accessKey + ";Autorizada\n",
		{"regrasDifal", "difal.pdf"}: "%PDF",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep report.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	rows := rep.Categories[domain.CategoryICMS][domain.FlowOutbound]
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutcomeDivergent, rows[0].Outcome)
	assert.Equal(t, 50.0, rows[0].ComplementAmount)
	assert.Equal(t, "Autorizada", rows[0].Status)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "lixo.xml", rep.Failures[0].Source)
	assert.NotEmpty(t, rep.RunID)

	history, err := runs.List(context.Background(), "ana", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rep.RunID, history[0].ID)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "ana", auth.RoleAudit))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []store.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestAuditRouteErrors(t *testing.T) {
	router, _ := setup(t)
	bearer := token(t, "ana", auth.RoleAudit)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", bearer, map[[2]string]string{
		{"regrasIcms", "icms.csv"}: "22030000;00;18;00;12\n",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code, "sem XML")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", bearer, map[[2]string]string{
		{"xmlSaidas", "evento.xml"}: "<procEventoNFe/>",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "nenhuma tabela e nenhuma nota válida")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit", bearer, map[[2]string]string{
		{"xmlSaidas", "a.xml"}:        nfeXML,
		{"schemaToml", "schema.toml"}: "[iss]\nncm = 0\n",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code, "esquema inválido")
}

func TestExportRoute(t *testing.T) {
	router, _ := setup(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, auditRequest(t, "/api/v1/audit/export", token(t, "ana", auth.RoleAudit), map[[2]string]string{
		{"xmlSaidas", "a.xml"}:     nfeXML,
		{"regrasIcms", "icms.csv"}: "22030000;00;18;00;12\n",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Auditoria_")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "ICMS")
}

func TestHealth(t *testing.T) {
	router, _ := setup(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}
