package alerting

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shellgate/bastion/internal/database"
)

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		notifyType string
		wantKeys   []string
	}{
		{NotifyDingTalk, []string{"msgtype", "text"}},
		{NotifyWeCom, []string{"msgtype", "text"}},
		{NotifyFeishu, []string{"msg_type", "content"}},
		{NotifyGeneric, []string{"message"}},
	}
	for _, tt := range tests {
		payload, err := buildPayload(tt.notifyType, "hello")
		if err != nil {
			t.Fatalf("%s: %v", tt.notifyType, err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("%s: invalid json: %v", tt.notifyType, err)
		}
		for _, k := range tt.wantKeys {
			if _, ok := m[k]; !ok {
				t.Errorf("%s payload missing %q: %s", tt.notifyType, k, payload)
			}
		}
	}

	if _, err := buildPayload("pager", "hello"); err == nil {
		t.Error("unsupported notify type: want error")
	}
}

func TestBuildPayloadShapes(t *testing.T) {
	payload, _ := buildPayload(NotifyDingTalk, "msg")
	var ding struct {
		MsgType string `json:"msgtype"`
		Text    struct {
			Content string `json:"content"`
		} `json:"text"`
	}
	if err := json.Unmarshal(payload, &ding); err != nil || ding.MsgType != "text" || ding.Text.Content != "msg" {
		t.Errorf("dingtalk payload = %s", payload)
	}

	payload, _ = buildPayload(NotifyFeishu, "msg")
	var feishu struct {
		MsgType string `json:"msg_type"`
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(payload, &feishu); err != nil || feishu.MsgType != "text" || feishu.Content.Text != "msg" {
		t.Errorf("feishu payload = %s", payload)
	}
}

func TestNotifyDeliversToAllContacts(t *testing.T) {
	db := testDB(t)

	var mu sync.Mutex
	bodies := make(map[string]string)
	newServer := func(name string, status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies[name] = string(body)
			mu.Unlock()
			w.WriteHeader(status)
		}))
	}
	okSrv := newServer("ok", http.StatusOK)
	defer okSrv.Close()
	failSrv := newServer("fail", http.StatusInternalServerError)
	defer failSrv.Close()
	genericSrv := newServer("generic", http.StatusNoContent)
	defer genericSrv.Close()

	contacts := []database.AlertContact{
		{Name: "ops-dingtalk", NotifyType: NotifyDingTalk, Webhook: okSrv.URL},
		{Name: "ops-broken", NotifyType: NotifyWeCom, Webhook: failSrv.URL},
		{Name: "ops-generic", NotifyType: NotifyGeneric, Webhook: genericSrv.URL},
	}
	var ids []uint
	for i := range contacts {
		if err := db.Create(&contacts[i]).Error; err != nil {
			t.Fatalf("seed contact: %v", err)
		}
		ids = append(ids, contacts[i].ID)
	}

	n := NewWebhookNotifier(db, okSrv.Client())
	n.Notify(Occurrence{
		Operator:   "alice",
		HostName:   "web-01",
		Command:    "rm -rf /",
		RuleName:   "dangerous delete",
		ContactIDs: ids,
	})

	mu.Lock()
	defer mu.Unlock()
	// A failing endpoint must not stop delivery to the others.
	if len(bodies) != 3 {
		t.Fatalf("delivered to %d endpoints, want 3", len(bodies))
	}
	var ding struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	}
	if err := json.Unmarshal([]byte(bodies["ok"]), &ding); err != nil {
		t.Fatalf("dingtalk body: %v", err)
	}
	for _, want := range []string{"alice", "web-01", "rm -rf /", "dangerous delete"} {
		if !strings.Contains(ding.Text.Content, want) {
			t.Errorf("message %q missing %q", ding.Text.Content, want)
		}
	}
}

func TestNotifyNoContacts(t *testing.T) {
	n := NewWebhookNotifier(testDB(t), nil)
	// Must be a no-op, not a query for an empty id set.
	n.Notify(Occurrence{RuleName: "r"})
}
