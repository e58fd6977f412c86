package service

import (
	"errors"
	"testing"
)

func TestVault_CreateListDelete(t *testing.T) {
	gdb := newTestDB(t)
	uid := mustRegister(t, gdb, "alice")
	vault := NewVaultService(gdb)

	created, err := vault.Create(uid, MessageInput{Recipient: "Alice", Channel: "Email", Contact: "a@x.com", Text: "hi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("Create() should assign an id")
	}

	msgs, err := vault.List(uid)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("List() returned %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.Recipient != "Alice" || got.Channel != "Email" || got.Contact != "a@x.com" || got.Text != "hi" {
		t.Errorf("List() returned %+v", got)
	}

	if err := vault.Delete(uid, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	msgs, err = vault.List(uid)
	if err != nil {
		t.Fatalf("List() after delete error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("List() after delete returned %d messages, want 0", len(msgs))
	}
}

func TestVault_DuplicatesAllowed(t *testing.T) {
	gdb := newTestDB(t)
	uid := mustRegister(t, gdb, "alice")
	vault := NewVaultService(gdb)

	in := MessageInput{Recipient: "Alice", Channel: "Email", Contact: "a@x.com", Text: "hi"}
	for i := 0; i < 2; i++ {
		if _, err := vault.Create(uid, in); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
	msgs, _ := vault.List(uid)
	if len(msgs) != 2 {
		t.Errorf("List() returned %d messages, want 2", len(msgs))
	}
}

func TestVault_OwnerScoping(t *testing.T) {
	gdb := newTestDB(t)
	alice := mustRegister(t, gdb, "alice")
	bob := mustRegister(t, gdb, "bob")
	vault := NewVaultService(gdb)

	created, err := vault.Create(alice, MessageInput{Recipient: "A", Channel: "Email", Contact: "a@x.com", Text: "hi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// bob cannot see, update or delete alice's message
	msgs, _ := vault.List(bob)
	if len(msgs) != 0 {
		t.Errorf("List(bob) returned %d messages, want 0", len(msgs))
	}
	_, err = vault.Update(bob, created.ID, MessageInput{Recipient: "B", Channel: "Email", Contact: "b@x.com", Text: "bye"})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Update() by non-owner error = %v, want ErrMessageNotFound", err)
	}
	if err := vault.Delete(bob, created.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Delete() by non-owner error = %v, want ErrMessageNotFound", err)
	}

	// still intact for alice
	msgs, _ = vault.List(alice)
	if len(msgs) != 1 || msgs[0].Recipient != "A" {
		t.Errorf("alice's message was affected: %+v", msgs)
	}
}

func TestVault_Update(t *testing.T) {
	gdb := newTestDB(t)
	uid := mustRegister(t, gdb, "alice")
	vault := NewVaultService(gdb)

	created, err := vault.Create(uid, MessageInput{Recipient: "Alice", Channel: "Email", Contact: "a@x.com", Text: "hi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	updated, err := vault.Update(uid, created.ID, MessageInput{Recipient: "Bob", Channel: "sms", Contact: "+15551234567", Text: "bye"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Recipient != "Bob" || updated.Channel != "sms" || updated.Contact != "+15551234567" || updated.Text != "bye" {
		t.Errorf("Update() returned %+v", updated)
	}

	if _, err := vault.Update(uid, created.ID+100, MessageInput{Recipient: "X", Channel: "Email", Contact: "x@x.com", Text: "x"}); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Update() with unknown id error = %v, want ErrMessageNotFound", err)
	}
}

func TestVault_Validation(t *testing.T) {
	gdb := newTestDB(t)
	uid := mustRegister(t, gdb, "alice")
	vault := NewVaultService(gdb)

	tests := []struct {
		name    string
		in      MessageInput
		wantErr bool
	}{
		{"valid email", MessageInput{Recipient: "A", Channel: "Email", Contact: "a@x.com", Text: "hi"}, false},
		{"valid email lowercase channel", MessageInput{Recipient: "A", Channel: "email", Contact: "a@x.com", Text: "hi"}, false},
		{"valid sms", MessageInput{Recipient: "A", Channel: "SMS", Contact: "+15551234567", Text: "hi"}, false},
		{"empty recipient", MessageInput{Recipient: "  ", Channel: "Email", Contact: "a@x.com", Text: "hi"}, true},
		{"empty text", MessageInput{Recipient: "A", Channel: "Email", Contact: "a@x.com", Text: ""}, true},
		{"malformed email", MessageInput{Recipient: "A", Channel: "Email", Contact: "not-an-email", Text: "hi"}, true},
		{"malformed phone", MessageInput{Recipient: "A", Channel: "sms", Contact: "call me", Text: "hi"}, true},
		{"unknown channel", MessageInput{Recipient: "A", Channel: "pigeon", Contact: "coop 3", Text: "hi"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vault.Create(uid, tt.in)
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Create() error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Create() error = %v", err)
			}
		})
	}
}
