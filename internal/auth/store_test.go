package auth

import (
	"sync"
	"testing"
)

func TestRegister(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		username string
		password string
		want     RegisterResult
	}{
		{name: "ok", username: "alice", password: "secret", want: RegisterCreated},
		{name: "trimmed ok", username: "  bob  ", password: "pw", want: RegisterCreated},
		{name: "empty username", username: "", password: "pw", want: RegisterInvalid},
		{name: "blank username", username: "   ", password: "pw", want: RegisterInvalid},
		{name: "empty password", username: "carol", password: "", want: RegisterInvalid},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewStore()
			if got := s.Register(tc.username, tc.password); got != tc.want {
				t.Fatalf("Register(%q, %q) = %v, want %v", tc.username, tc.password, got, tc.want)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if got := s.Register("alice", "secret"); got != RegisterCreated {
		t.Fatalf("first register = %v, want created", got)
	}
	if got := s.Register("alice", "other"); got != RegisterExists {
		t.Fatalf("second register = %v, want exists", got)
	}
	// Trimming must collide with the canonical name.
	if got := s.Register(" alice ", "other"); got != RegisterExists {
		t.Fatalf("trimmed register = %v, want exists", got)
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Register("alice", "secret")

	if _, ok := s.Authenticate("alice", "wrong"); ok {
		t.Fatal("authenticated with wrong password")
	}
	if _, ok := s.Authenticate("nobody", "secret"); ok {
		t.Fatal("authenticated unknown user")
	}
	u, ok := s.Authenticate("alice", "secret")
	if !ok {
		t.Fatal("failed to authenticate valid credentials")
	}
	if u.Username != "alice" {
		t.Fatalf("username = %q, want alice", u.Username)
	}
}

func TestRegisterPrehashedRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Register("alice", "secret")
	users := s.All()
	if len(users) != 1 {
		t.Fatalf("All() returned %d users, want 1", len(users))
	}

	restored := NewStore()
	for _, u := range users {
		restored.RegisterPrehashed(u)
	}
	if _, ok := restored.Authenticate("alice", "secret"); !ok {
		t.Fatal("restored store rejected original credentials")
	}
}

func TestConcurrentRegister(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	created := make(chan RegisterResult, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created <- s.Register("alice", "secret")
		}()
	}
	wg.Wait()
	close(created)

	wins := 0
	for r := range created {
		if r == RegisterCreated {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("%d registrations succeeded, want exactly 1", wins)
	}
	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.Count())
	}
}
