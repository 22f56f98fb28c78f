package services

import (
	"context"
	"errors"
	"testing"

	types "github.com/eosdis/harmony-workflow/internal/domain"
)

type fakePerms struct {
	eula     map[string]*bool
	eulaErr  error
	guest    map[string]bool
	guestErr error
}

func (f *fakePerms) EulaFlags(ctx context.Context, ids []string, token string) (map[string]*bool, error) {
	return f.eula, f.eulaErr
}

func (f *fakePerms) GuestReadable(ctx context.Context, ids []string) (map[string]bool, error) {
	return f.guest, f.guestErr
}

func boolPtr(v bool) *bool { return &v }

func shareJob(collections ...string) *types.Job {
	j := &types.Job{Username: "joe", Status: types.JobStatusSuccessful}
	j.SetCollections(collections)
	return j
}

func TestShareGate(t *testing.T) {
	open := &fakePerms{
		eula:  map[string]*bool{"C1": boolPtr(false)},
		guest: map[string]bool{"C1": true},
	}

	cases := []struct {
		name    string
		job     *types.Job
		user    string
		isAdmin bool
		perms   CollectionPermissions
		want    bool
	}{
		{name: "admin always reads", job: shareJob(), user: "someone", isAdmin: true, perms: open, want: true},
		{name: "owner always reads", job: shareJob(), user: "joe", perms: open, want: true},
		{name: "no collections denies non-owner", job: shareJob(), user: "jill", perms: open, want: false},
		{name: "open collection allows guest", job: shareJob("C1"), user: "jill", perms: open, want: true},
		{
			name: "eula tag true denies", job: shareJob("C1"), user: "jill",
			perms: &fakePerms{eula: map[string]*bool{"C1": boolPtr(true)}, guest: map[string]bool{"C1": true}},
			want:  false,
		},
		{
			name: "missing eula tag denies", job: shareJob("C1"), user: "jill",
			perms: &fakePerms{eula: map[string]*bool{"C1": nil}, guest: map[string]bool{"C1": true}},
			want:  false,
		},
		{
			name: "not guest readable denies", job: shareJob("C1"), user: "jill",
			perms: &fakePerms{eula: map[string]*bool{"C1": boolPtr(false)}, guest: map[string]bool{"C1": false}},
			want:  false,
		},
		{
			name: "one restricted collection denies all", job: shareJob("C1", "C2"), user: "jill",
			perms: &fakePerms{
				eula:  map[string]*bool{"C1": boolPtr(false), "C2": boolPtr(false)},
				guest: map[string]bool{"C1": true, "C2": false},
			},
			want: false,
		},
		{
			name: "eula lookup failure denies", job: shareJob("C1"), user: "jill",
			perms: &fakePerms{eulaErr: errors.New("cmr down")},
			want:  false,
		},
		{
			name: "permission lookup failure denies", job: shareJob("C1"), user: "jill",
			perms: &fakePerms{eula: map[string]*bool{"C1": boolPtr(false)}, guestErr: errors.New("cmr down")},
			want:  false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewShareGateService(tc.perms, testLogger(t))
			got := gate.CanViewJob(context.Background(), tc.job, tc.user, tc.isAdmin, "token")
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
