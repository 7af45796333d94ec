package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contact-guard/internal/delivery"
)

func TestSinkReceivesWebhookDeliveries(t *testing.T) {
	s := newSink()
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	sender := delivery.NewWebhookSender(srv.URL+"/messages", 100, 10, srv.Client())
	m := delivery.Message{ID: "id-1", Name: "Ada", Email: "ada@example.com", Category: "Work", Subject: "New Work enquiry - Ada"}
	for i := 0; i < 2; i++ {
		if err := sender.Send(context.Background(), m); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}

	resp, err := http.Get(srv.URL + "/messages")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var got []delivery.Message
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "id-1" {
		t.Fatalf("expected one de-duplicated message, got %+v", got)
	}
}

func TestSinkRejectsGarbage(t *testing.T) {
	rr := httptest.NewRecorder()
	newSink().routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"name":"no id"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
