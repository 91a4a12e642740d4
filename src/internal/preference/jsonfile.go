package preference

import (
	"context"
	"os"
	"sort"
	"sync"

	"moodmeal/src/internal/storage"
)

const stateName = "preferences"

// JSONPersister keeps every profile in one JSON state file.
type JSONPersister struct {
	st       *storage.Storage
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewJSONPersister(st *storage.Storage) *JSONPersister {
	return &JSONPersister{st: st, profiles: make(map[string]Profile)}
}

func (j *JSONPersister) LoadAll(_ context.Context) ([]Profile, error) {
	var state struct {
		Profiles []Profile `json:"profiles"`
	}
	if err := j.st.LoadState(stateName, &state); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.profiles = make(map[string]Profile, len(state.Profiles))
	for _, p := range state.Profiles {
		j.profiles[p.UserID] = p
	}
	return state.Profiles, nil
}

func (j *JSONPersister) Save(_ context.Context, p Profile) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.profiles[p.UserID] = p

	ids := make([]string, 0, len(j.profiles))
	for id := range j.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	state := struct {
		Profiles []Profile `json:"profiles"`
	}{Profiles: make([]Profile, 0, len(ids))}
	for _, id := range ids {
		state.Profiles = append(state.Profiles, j.profiles[id])
	}
	return j.st.SaveState(stateName, state)
}

func (j *JSONPersister) Close() error { return nil }
