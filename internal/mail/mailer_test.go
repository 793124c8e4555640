package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPMailerBuildsActivationMessage(t *testing.T) {
	m, err := NewSMTPMailer("relay.local:587", "noreply@inkwell.org", "user", "pass", "https://inkwell.org/")
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	if err := m.SendActivationMail(context.Background(), "ada@example.com", "ada", "tok123"); err != nil {
		t.Fatalf("SendActivationMail: %v", err)
	}
	if gotAddr != "relay.local:587" || gotFrom != "noreply@inkwell.org" {
		t.Fatalf("unexpected relay call: %s %s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	if !strings.Contains(gotMsg, "https://inkwell.org/auth/activate/tok123") {
		t.Fatalf("activation link missing from message:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Subject: Activate your account") {
		t.Fatalf("subject missing from message:\n%s", gotMsg)
	}
}

func TestNewSMTPMailerValidation(t *testing.T) {
	if _, err := NewSMTPMailer("", "noreply@inkwell.org", "", "", ""); err == nil {
		t.Fatalf("expected error for missing relay address")
	}
	if _, err := NewSMTPMailer("relay:25", "", "", "", ""); err == nil {
		t.Fatalf("expected error for missing sender")
	}
}

func TestLogMailer(t *testing.T) {
	if err := (LogMailer{}).SendActivationMail(context.Background(), "a@b.c", "a", "tok"); err != nil {
		t.Fatalf("LogMailer: %v", err)
	}
}
