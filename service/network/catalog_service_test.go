package network

import (
	"context"
	"coverage-service/service/coverage"
	"coverage-service/service/models"
	"coverage-service/testutil"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *testutil.TestDataFactory) {
	db := testutil.NewTestDBT(t)
	return NewService(db), testutil.NewTestDataFactory(db)
}

func TestCreateNetwork(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateNetwork(ctx, &models.Network{ID: " Cigna_PPO ", Name: "Cigna"}, "admin"))
	err := svc.CreateNetwork(ctx, &models.Network{ID: "Cigna_PPO"}, "admin")
	assert.ErrorIs(t, err, ErrNetworkExists)
	assert.ErrorIs(t, svc.CreateNetwork(ctx, &models.Network{ID: ""}, "admin"), ErrInvalidMapping)

	networks, err := svc.ListNetworks(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "Cigna_PPO", networks[0].ID)
	assert.Equal(t, "admin", networks[0].CreatedBy)

	ok, err := svc.NetworkExists(ctx, "Cigna_PPO")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertMappings(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	n, err := svc.UpsertMappings(ctx, []coverage.NetworkMapping{
		{Zip: "63011", Network: "Aetna_HMO"},
		{Zip: "94105-1234", Network: "Cigna_PPO"},
		{Zip: "501", Network: "Cigna_PPO"},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mappings, err := svc.ListMappings(ctx, "Cigna_PPO")
	require.NoError(t, err)
	zips := make([]string, len(mappings))
	for i, m := range mappings {
		zips[i] = m.Zip
	}
	assert.Equal(t, []string{"00501", "94105"}, zips)

	all, err := svc.ListMappings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUpsertMappings_RejectsWholeBatch(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	_, err := svc.UpsertMappings(ctx, []coverage.NetworkMapping{
		{Zip: "30301", Network: "Cigna_PPO"},
		{Zip: "30302", Network: "Unknown_EPO"},
	}, "admin")
	assert.ErrorIs(t, err, ErrNetworkNotFound)

	_, err = svc.UpsertMappings(ctx, []coverage.NetworkMapping{
		{Zip: "30301", Network: "Cigna_PPO"},
		{Zip: "30301-0001", Network: "Aetna_HMO"},
	}, "admin")
	assert.ErrorIs(t, err, ErrInvalidMapping)

	_, err = svc.UpsertMappings(ctx, nil, "admin")
	assert.ErrorIs(t, err, ErrInvalidMapping)

	all, err := svc.ListMappings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2, "失败的批次不应写入任何映射")
}

func TestDeleteMapping(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	require.NoError(t, svc.DeleteMapping(ctx, "10001"))
	assert.ErrorIs(t, svc.DeleteMapping(ctx, "10001"), ErrMappingNotFound)
}

func TestDeleteNetwork(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	assert.ErrorIs(t, svc.DeleteNetwork(ctx, "Cigna_PPO"), ErrNetworkIsDefault)
	assert.ErrorIs(t, svc.DeleteNetwork(ctx, "Missing"), ErrNetworkNotFound)

	require.NoError(t, svc.DeleteNetwork(ctx, "Aetna_HMO"))
	mappings, err := svc.ListMappings(ctx, "Aetna_HMO")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestUpdateSettings(t *testing.T) {
	svc, factory := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetSettings(ctx)
	assert.ErrorIs(t, err, ErrSettingsNotConfigured)

	factory.CreateCatalog([]string{"Cigna_PPO", "Aetna_HMO"}, nil, "Cigna_PPO", 0.9)

	_, err = svc.UpdateSettings(ctx, coverage.AssignmentSettings{DefaultNetwork: "Kaiser", CoverageThreshold: 0.8}, "admin")
	assert.ErrorIs(t, err, coverage.ErrUnknownDefaultNetwork)
	_, err = svc.UpdateSettings(ctx, coverage.AssignmentSettings{DefaultNetwork: "Aetna_HMO", CoverageThreshold: 1.5}, "admin")
	assert.ErrorIs(t, err, coverage.ErrInvalidThreshold)
	_, err = svc.UpdateSettings(ctx, coverage.AssignmentSettings{CoverageThreshold: 0.5}, "admin")
	assert.ErrorIs(t, err, coverage.ErrMissingDefaultNetwork)

	updated, err := svc.UpdateSettings(ctx, coverage.AssignmentSettings{DefaultNetwork: "Aetna_HMO", CoverageThreshold: 0.75}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Aetna_HMO", updated.DefaultNetwork)

	stored, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.75, stored.CoverageThreshold)
	assert.Equal(t, "admin", stored.UpdatedBy)
}

func TestSnapshot_CachedUntilWrite(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	network, ok := snap.Catalog.Lookup("63011")
	require.True(t, ok)
	assert.Equal(t, "Cigna_PPO", network)
	assert.Equal(t, 0.9, snap.Settings.CoverageThreshold)

	// 绕过服务直接写库，缓存仍返回旧快照
	require.NoError(t, factory.DB.Model(&models.NetworkMapping{}).Where("zip = ?", "63011").Update("network_id", "Aetna_HMO").Error)
	cached, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, snap, cached)

	// 通过服务写入会使缓存失效
	_, err = svc.UpsertMappings(ctx, []coverage.NetworkMapping{{Zip: "30301", Network: "Cigna_PPO"}}, "admin")
	require.NoError(t, err)
	fresh, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	network, _ = fresh.Catalog.Lookup("63011")
	assert.Equal(t, "Aetna_HMO", network)
	_, ok = fresh.Catalog.Lookup("30301")
	assert.True(t, ok)
}

func TestSnapshot_RequiresSettings(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrSettingsNotConfigured)
}

func TestInvalidate_IncrementsGeneration(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	before := svc.generation
	var inv Invalidator = svc
	inv.Invalidate()
	assert.Equal(t, before+1, svc.generation)
	assert.Nil(t, svc.cached)
}

func TestSnapshot_RejectsDanglingDefaultNetwork(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	require.NoError(t, factory.DB.Exec("UPDATE network_settings SET default_network = ?", "Ghost_PPO").Error)

	_, err := svc.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrSettingsInvalid)
	assert.NotErrorIs(t, err, coverage.ErrUnknownDefaultNetwork)
}

func TestUpdateSettings_DeletedNetworkRejected(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateExampleCatalog()
	ctx := context.Background()

	require.NoError(t, svc.DeleteNetwork(ctx, "Aetna_HMO"))
	_, err := svc.UpdateSettings(ctx, coverage.AssignmentSettings{DefaultNetwork: "Aetna_HMO", CoverageThreshold: 0.8}, "admin")
	assert.ErrorIs(t, err, coverage.ErrUnknownDefaultNetwork)
}

func TestUpdateSettingsAndDeleteNetwork_NeverLeaveDanglingDefault(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		svc, factory := newTestService(t)
		factory.CreateExampleCatalog()

		var wg sync.WaitGroup
		var updateErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, updateErr = svc.UpdateSettings(ctx, coverage.AssignmentSettings{DefaultNetwork: "Aetna_HMO", CoverageThreshold: 0.9}, "admin")
		}()
		go func() {
			defer wg.Done()
			deleteErr = svc.DeleteNetwork(ctx, "Aetna_HMO")
		}()
		wg.Wait()

		// 两个写入不能同时成功
		require.False(t, updateErr == nil && deleteErr == nil)

		snap, err := svc.Snapshot(ctx)
		require.NoError(t, err, "设置必须始终指向目录中的网络")
		assert.True(t, snap.Catalog.Has(snap.Settings.DefaultNetwork))
	}
}
