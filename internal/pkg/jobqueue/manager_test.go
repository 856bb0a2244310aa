package jobqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
)

func resetManager(t *testing.T) {
	t.Helper()
	globalManager = nil
	managerOnce = sync.Once{}
	t.Cleanup(func() {
		globalManager = nil
		managerOnce = sync.Once{}
	})
}

func TestGetManager(t *testing.T) {
	resetManager(t)

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"8", 8},
		{"0", defaultWorkerCount},
		{"many", defaultWorkerCount},
	}

	saved := env.Env
	t.Cleanup(func() { env.Env = saved })
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			env.Env = map[string]string{"JOBQUEUE_WORKERS": tt.value}
			assert.Equal(t, tt.want, workerCount())
		})
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	resetManager(t)

	manager := GetManager()
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_WatchPolicy(t *testing.T) {
	resetManager(t)

	store := policy.NewStore(policy.Default())
	manager := GetManager()
	manager.WatchPolicy(store)
	assert.Same(t, store, manager.policyStore)
}
