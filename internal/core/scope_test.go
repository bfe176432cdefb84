package core

import "testing"

func TestScopeAllows(t *testing.T) {
	member := Scope{
		UserID:     "u1",
		ProjectIDs: []string{"p1", "p2"},
		AccountIDs: []string{"a1"},
	}
	admin := Scope{UserID: "root", Admin: true}

	if !member.AllowsProject("p1") || member.AllowsProject("p9") {
		t.Error("member project containment wrong")
	}
	if !member.AllowsAccount("a1") || member.AllowsAccount("a9") {
		t.Error("member account containment wrong")
	}
	if !admin.AllowsProject("anything") || !admin.AllowsAccount("anything") {
		t.Error("admin should see everything")
	}

	inScope := Movement{ID: "m1", ProjectID: "p2"}
	outOfScope := Movement{ID: "m2", ProjectID: "p9"}
	unassigned := Movement{ID: "m3"}

	if !member.AllowsMovement(inScope) {
		t.Error("movement on member project should be visible")
	}
	if member.AllowsMovement(outOfScope) {
		t.Error("movement on foreign project should be hidden")
	}
	if member.AllowsMovement(unassigned) {
		t.Error("project-less movement should be hidden from non-admins")
	}
	if !admin.AllowsMovement(unassigned) {
		t.Error("project-less movement should be visible to admins")
	}
}

func TestScopeFilterMovements(t *testing.T) {
	member := Scope{UserID: "u1", ProjectIDs: []string{"p1"}}
	ms := []Movement{
		{ID: "m1", ProjectID: "p1"},
		{ID: "m2", ProjectID: "p2"},
		{ID: "m3"},
	}

	got := member.FilterMovements(ms)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("expected only m1, got %v", got)
	}

	admin := Scope{Admin: true}
	if len(admin.FilterMovements(ms)) != 3 {
		t.Error("admin filter should pass everything through")
	}
}
