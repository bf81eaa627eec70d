package tokenstore

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewAt(filepath.Join(t.TempDir(), "accounts.json"))
}

func TestAddAndLoadAccount(t *testing.T) {
	s := newTestStore(t)

	if err := s.Add("test@example.com", "refresh"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	doc, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(doc.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(doc.Accounts))
	}
	if doc.Accounts[0].Email != "test@example.com" {
		t.Fatalf("unexpected email %q", doc.Accounts[0].Email)
	}
}

func TestUpdateExistingAccountDoesNotDuplicate(t *testing.T) {
	s := newTestStore(t)

	if err := s.Add("test@example.com", "refresh1"); err != nil {
		t.Fatalf("Add 1: %v", err)
	}
	if err := s.Add("test@example.com", "refresh2"); err != nil {
		t.Fatalf("Add 2: %v", err)
	}

	doc, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(doc.Accounts) != 1 {
		t.Fatalf("expected no duplicate, got %d accounts", len(doc.Accounts))
	}
	if doc.Accounts[0].RefreshToken != "refresh2" {
		t.Fatalf("expected updated token, got %q", doc.Accounts[0].RefreshToken)
	}
}

func TestRemoveAccount(t *testing.T) {
	s := newTestStore(t)

	if err := s.Add("test@example.com", "refresh"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	removed, err := s.Remove("test@example.com")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatalf("expected account to be removed")
	}

	doc, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(doc.Accounts) != 0 {
		t.Fatalf("expected empty accounts, got %d", len(doc.Accounts))
	}
}

func TestGetRefreshTokenFallsBackToFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("test@example.com", "refresh"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tok, err := s.GetRefreshToken("test@example.com")
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if tok != "refresh" {
		t.Fatalf("unexpected token %q", tok)
	}
}

func TestGetRefreshTokenMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRefreshToken("nobody@example.com"); err == nil {
		t.Fatalf("expected error for missing account")
	}
}

func TestSetActiveBoundsChecked(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("a@example.com", "r"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.SetActive(0); err != nil {
		t.Fatalf("SetActive(0): %v", err)
	}
	if err := s.SetActive(5); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}
