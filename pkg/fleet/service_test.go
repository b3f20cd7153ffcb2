package fleet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Pallinder/go-randomdata"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dronemed/pkg/drone"
	"dronemed/pkg/events"
	"dronemed/pkg/medication"
	"dronemed/pkg/store"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(_ context.Context, evt events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) types() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Type)
	}
	return out
}

type fixture struct {
	svc     *Service
	mem     *store.Memory
	emitter *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mem := store.NewMemory()
	emitter := &recordingEmitter{}
	return &fixture{
		svc:     NewService(mem.Drones(), mem.Medications(), emitter, logger),
		mem:     mem,
		emitter: emitter,
	}
}

func (f *fixture) register(t *testing.T, class drone.WeightClass) *drone.Drone {
	t.Helper()
	d, err := f.svc.RegisterDrone(context.Background(), RegisterRequest{
		SerialNumber: randomdata.Alphanumeric(32),
		WeightClass:  string(class),
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) stored(t *testing.T, serialNumber string) *drone.Drone {
	t.Helper()
	d, err := f.mem.Drones().FindByID(context.Background(), serialNumber)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (f *fixture) seed(t *testing.T, d *drone.Drone) {
	t.Helper()
	_, err := f.mem.Drones().Save(context.Background(), d)
	require.NoError(t, err)
}

func newMedication(weight float64) medication.Medication {
	return medication.Medication{
		ID:     randomdata.Alphanumeric(16),
		Name:   "Medication-" + randomdata.Alphanumeric(4),
		Code:   strings.ToUpper(randomdata.Alphanumeric(10)),
		Weight: weight,
		ImgURL: "https://img.example.org/" + randomdata.Alphanumeric(8),
	}
}

func TestRegisterDrone_Heavy(t *testing.T) {
	f := newFixture(t)

	d := f.register(t, drone.WeightClassHeavy)

	assert.Equal(t, float64(500), d.WeightLimit)
	assert.Equal(t, 100, d.BatteryCapacity)
	assert.Equal(t, drone.StateIdle, d.State)
	assert.Empty(t, d.LoadedMeds)

	assert.Equal(t, d, f.stored(t, d.SerialNumber))
	assert.Equal(t, []events.Type{events.TypeRegistered}, f.emitter.types())
}

func TestRegisterDrone_AllClasses(t *testing.T) {
	f := newFixture(t)

	for in, limit := range map[string]float64{"LIGHT": 200, "MIDDLE_WEIGHT": 400, "Cruiserweight": 100, "heavy": 500} {
		d, err := f.svc.RegisterDrone(context.Background(), RegisterRequest{SerialNumber: "SN-" + in, WeightClass: in})
		require.NoError(t, err)
		assert.Equal(t, limit, d.WeightLimit, "class %s", in)
	}
}

func TestRegisterDrone_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterDrone(context.Background(), RegisterRequest{SerialNumber: "SN-1", WeightClass: "FEATHER"})
	assert.True(t, errors.Is(err, ErrInvalidDrone), "got %v", err)

	_, err = f.svc.RegisterDrone(context.Background(), RegisterRequest{SerialNumber: "", WeightClass: "LIGHT"})
	assert.True(t, errors.Is(err, ErrInvalidDrone), "got %v", err)

	all, _ := f.svc.GetAllDrones(context.Background())
	assert.Empty(t, all)
}

func TestRegisterDrone_CollisionOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.register(t, drone.WeightClassLight)
	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(50))
	require.NoError(t, err)
	require.True(t, res.OK())

	again, err := f.svc.RegisterDrone(ctx, RegisterRequest{SerialNumber: d.SerialNumber, WeightClass: "HEAVY"})
	require.NoError(t, err)

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, again, stored)
	assert.Equal(t, float64(500), stored.WeightLimit)
	assert.Equal(t, 100, stored.BatteryCapacity)
	assert.Empty(t, stored.LoadedMeds)

	all, _ := f.svc.GetAllDrones(ctx)
	assert.Len(t, all, 1)
}

func TestGetDroneByID(t *testing.T) {
	f := newFixture(t)
	d := f.register(t, drone.WeightClassMiddle)

	got, err := f.svc.GetDroneByID(context.Background(), d.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = f.svc.GetDroneByID(context.Background(), "unknown")
	assert.True(t, errors.Is(err, ErrDroneNotFound))
}

func TestLoadDrone_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassLight)
	med := newMedication(50)

	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, med)
	require.NoError(t, err)
	assert.Equal(t, CodeSuccess, res.Code)
	assert.True(t, res.OK())

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, []string{med.ID}, stored.LoadedMeds)
	assert.Equal(t, drone.StateLoading, stored.State)
	assert.Equal(t, 85, stored.BatteryCapacity)

	savedMed, err := f.mem.Medications().FindByID(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, med, *savedMed)

	assert.Equal(t, []events.Type{events.TypeRegistered, events.TypeLoaded}, f.emitter.types())
}

func TestLoadDrone_DroneNotFound(t *testing.T) {
	f := newFixture(t)
	med := newMedication(10)

	res, err := f.svc.LoadDrone(context.Background(), "ghost-drone", med)
	require.NoError(t, err)
	assert.Equal(t, CodeDroneNotFound, res.Code)
	assert.Contains(t, res.Message, "ghost-drone")

	saved, _ := f.mem.Medications().FindByID(context.Background(), med.ID)
	assert.Nil(t, saved, "no medication may be stored on rejection")
}

func TestLoadDrone_Overweight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassLight)

	first := newMedication(150)
	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, first)
	require.NoError(t, err)
	require.True(t, res.OK())

	heavy := newMedication(51)
	res, err = f.svc.LoadDrone(ctx, d.SerialNumber, heavy)
	require.NoError(t, err)
	assert.Equal(t, CodeOverweight, res.Code)

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, drone.StateLoaded, stored.State)
	assert.Equal(t, []string{first.ID}, stored.LoadedMeds)
	assert.Equal(t, 85, stored.BatteryCapacity, "rejection must not drain the battery")

	saved, _ := f.mem.Medications().FindByID(ctx, heavy.ID)
	assert.Nil(t, saved)

	assert.Equal(t, events.TypeLoadRejected, f.emitter.types()[2])
}

func TestLoadDrone_ExactlyAtLimit(t *testing.T) {
	f := newFixture(t)
	d := f.register(t, drone.WeightClassCruiser)

	res, err := f.svc.LoadDrone(context.Background(), d.SerialNumber, newMedication(100))
	require.NoError(t, err)
	assert.Equal(t, CodeSuccess, res.Code, "admission is checked against the limit, not a margin")
}

func TestLoadDrone_MaxCountReached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := drone.New(randomdata.Alphanumeric(20), drone.WeightClassHeavy)
	require.NoError(t, err)
	for i := 0; i < drone.MaxLoadedMeds; i++ {
		m := newMedication(1)
		_, err := f.mem.Medications().Save(ctx, &m)
		require.NoError(t, err)
		d.LoadedMeds = append(d.LoadedMeds, m.ID)
	}
	f.seed(t, d)

	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(0))
	require.NoError(t, err)
	assert.Equal(t, CodeMaxCountReached, res.Code)

	stored := f.stored(t, d.SerialNumber)
	assert.Len(t, stored.LoadedMeds, drone.MaxLoadedMeds)
	assert.Equal(t, drone.StateLoaded, stored.State)
	assert.Equal(t, 100, stored.BatteryCapacity)
}

func TestLoadDrone_BatteryTooLow(t *testing.T) {
	f := newFixture(t)

	d, err := drone.New(randomdata.Alphanumeric(20), drone.WeightClassHeavy)
	require.NoError(t, err)
	d.BatteryCapacity = 20
	f.seed(t, d)
	before := f.stored(t, d.SerialNumber)

	res, err := f.svc.LoadDrone(context.Background(), d.SerialNumber, newMedication(5))
	require.NoError(t, err)
	assert.Equal(t, CodeBatteryTooLow, res.Code)
	assert.Equal(t, before, f.stored(t, d.SerialNumber), "drone must not be mutated")
	assert.Empty(t, f.emitter.types())
}

func TestLoadDrone_BatterySequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassHeavy)

	for _, expected := range []int{85, 70, 55, 40, 25} {
		res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(1))
		require.NoError(t, err)
		require.Equal(t, CodeSuccess, res.Code)
		assert.Equal(t, expected, f.stored(t, d.SerialNumber).BatteryCapacity)
	}

	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(1))
	require.NoError(t, err)
	assert.Equal(t, CodeBatteryTooLow, res.Code, "battery at 25 refuses loading")
	assert.Equal(t, drone.StateLoading, f.stored(t, d.SerialNumber).State)

	level, err := f.svc.GetBatteryLevel(ctx, d.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, 25, level)
}

func TestLoadDrone_UnresolvedMedicationIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := drone.New(randomdata.Alphanumeric(20), drone.WeightClassHeavy)
	require.NoError(t, err)
	d.LoadedMeds = []string{"vanished"}
	f.seed(t, d)

	res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(5))
	assert.Equal(t, CodeMedicationNotFound, res.Code)
	assert.True(t, errors.Is(err, medication.ErrMedicationNotFound), "got %v", err)

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, drone.StateIdle, stored.State)
	assert.Equal(t, []string{"vanished"}, stored.LoadedMeds)

	// the read path is best effort
	meds, err := f.svc.GetLoadedMeds(ctx, d.SerialNumber)
	require.NoError(t, err)
	assert.Empty(t, meds)
}

func TestLoadDrone_InvalidMedication(t *testing.T) {
	f := newFixture(t)
	d := f.register(t, drone.WeightClassHeavy)

	_, err := f.svc.LoadDrone(context.Background(), d.SerialNumber, medication.Medication{Weight: 1})
	assert.True(t, errors.Is(err, medication.ErrInvalidMedication))

	_, err = f.svc.LoadDrone(context.Background(), d.SerialNumber, medication.Medication{ID: "x", Weight: -1})
	assert.True(t, errors.Is(err, medication.ErrInvalidMedication))

	assert.Equal(t, drone.StateIdle, f.stored(t, d.SerialNumber).State)
}

func TestLoadDrone_UnknownDroneWinsOverInvalidMedication(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.LoadDrone(context.Background(), "ghost-drone", medication.Medication{Weight: -1})
	require.NoError(t, err)
	assert.Equal(t, CodeDroneNotFound, res.Code)
}

func TestLoadDrone_MedicationIDCollisionOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, drone.WeightClassHeavy)
	b := f.register(t, drone.WeightClassHeavy)

	med := newMedication(10)
	_, err := f.svc.LoadDrone(ctx, a.SerialNumber, med)
	require.NoError(t, err)

	med.Weight = 30
	med.Name = "renamed"
	_, err = f.svc.LoadDrone(ctx, b.SerialNumber, med)
	require.NoError(t, err)

	saved, _ := f.mem.Medications().FindByID(ctx, med.ID)
	assert.Equal(t, "renamed", saved.Name)

	// both drones now reference the same record
	metaA, _ := f.svc.GetLoadedMeds(ctx, a.SerialNumber)
	require.Len(t, metaA, 1)
	assert.Equal(t, float64(30), metaA[0].Weight)
}

func TestGetLoadedMeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassMiddle)

	first, second := newMedication(10), newMedication(20)
	for _, m := range []medication.Medication{first, second} {
		res, err := f.svc.LoadDrone(ctx, d.SerialNumber, m)
		require.NoError(t, err)
		require.True(t, res.OK())
	}

	meds, err := f.svc.GetLoadedMeds(ctx, d.SerialNumber)
	require.NoError(t, err)
	require.Len(t, meds, 2)
	assert.Equal(t, first.ID, meds[0].ID)
	assert.Equal(t, second.ID, meds[1].ID)

	none, err := f.svc.GetLoadedMeds(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReturnDrone_ClearsMeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassHeavy)

	_, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(10))
	require.NoError(t, err)

	require.NoError(t, f.svc.ReturnDrone(ctx, d.SerialNumber))

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, drone.StateReturning, stored.State)
	assert.Empty(t, stored.LoadedMeds)

	meds, err := f.svc.GetLoadedMeds(ctx, d.SerialNumber)
	require.NoError(t, err)
	assert.Empty(t, meds)
}

func TestMarkIdle_KeepsMeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassHeavy)

	med := newMedication(10)
	_, err := f.svc.LoadDrone(ctx, d.SerialNumber, med)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkIdle(ctx, d.SerialNumber))

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, drone.StateIdle, stored.State)
	assert.Equal(t, []string{med.ID}, stored.LoadedMeds)
}

func TestFullRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassMiddle)

	_, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(100))
	require.NoError(t, err)
	assert.Equal(t, drone.StateLoading, f.stored(t, d.SerialNumber).State)

	steps := []struct {
		op    func(context.Context, string) error
		state drone.State
	}{
		{f.svc.SendDroneForDelivery, drone.StateDelivering},
		{f.svc.DeliverDrone, drone.StateDelivered},
		{f.svc.ReturnDrone, drone.StateReturning},
		{f.svc.MarkIdle, drone.StateIdle},
	}

	for _, step := range steps {
		require.NoError(t, step.op(ctx, d.SerialNumber))
		assert.Equal(t, step.state, f.stored(t, d.SerialNumber).State)
	}

	assert.Equal(t, []events.Type{
		events.TypeRegistered,
		events.TypeLoaded,
		events.TypeStateChanged,
		events.TypeStateChanged,
		events.TypeStateChanged,
		events.TypeStateChanged,
	}, f.emitter.types())
}

func TestTransitions_UnknownDroneIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.SendDroneForDelivery(ctx, "unknown"))
	assert.NoError(t, f.svc.DeliverDrone(ctx, "unknown"))
	assert.NoError(t, f.svc.ReturnDrone(ctx, "unknown"))
	assert.NoError(t, f.svc.MarkIdle(ctx, "unknown"))

	all, _ := f.svc.GetAllDrones(ctx)
	assert.Empty(t, all, "no drone may be created by a transition")
	assert.Empty(t, f.emitter.types())
}

func TestGetBatteryLevel_UnknownDrone(t *testing.T) {
	f := newFixture(t)

	level, err := f.svc.GetBatteryLevel(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, level)
}

func TestGetDronesByState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expected := map[drone.State][]string{}
	for i, st := range []drone.State{
		drone.StateIdle, drone.StateLoading, drone.StateLoaded, drone.StateDelivering,
		drone.StateDelivered, drone.StateReturning, drone.StateIdle, drone.StateDelivering, drone.StateIdle,
	} {
		d, err := drone.New(fmt.Sprintf("SN-%02d", i), drone.WeightClassLight)
		require.NoError(t, err)
		d.State = st
		f.seed(t, d)
		expected[st] = append(expected[st], d.SerialNumber)
	}

	serials := func(ds []*drone.Drone) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.SerialNumber)
		}
		return out
	}

	idle, err := f.svc.GetIdleDrones(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, expected[drone.StateIdle], serials(idle))

	loaded, _ := f.svc.GetLoadedDrones(ctx)
	assert.ElementsMatch(t, expected[drone.StateLoaded], serials(loaded))

	delivering, _ := f.svc.GetDronesMarkedForDelivery(ctx)
	assert.ElementsMatch(t, expected[drone.StateDelivering], serials(delivering))

	delivered, _ := f.svc.GetDronesMarkedAsDelivered(ctx)
	assert.ElementsMatch(t, expected[drone.StateDelivered], serials(delivered))

	returning, _ := f.svc.GetReturningDrones(ctx)
	assert.ElementsMatch(t, expected[drone.StateReturning], serials(returning))

	loading, _ := f.svc.GetDronesByState(ctx, drone.StateLoading)
	assert.ElementsMatch(t, expected[drone.StateLoading], serials(loading))

	all, _ := f.svc.GetAllDrones(ctx)
	assert.Len(t, all, 9)
}

func TestLoadDrone_ConcurrentLoadsStayConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t, drone.WeightClassHeavy)

	const attempts = 20
	codes := make(chan Code, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.LoadDrone(ctx, d.SerialNumber, newMedication(1))
			assert.NoError(t, err)
			codes <- res.Code
		}()
	}
	wg.Wait()
	close(codes)

	successes := 0
	for c := range codes {
		if c == CodeSuccess {
			successes++
		} else {
			assert.Equal(t, CodeBatteryTooLow, c)
		}
	}

	stored := f.stored(t, d.SerialNumber)
	assert.Equal(t, 5, successes)
	assert.Len(t, stored.LoadedMeds, 5)
	assert.Equal(t, 25, stored.BatteryCapacity)
	assert.Equal(t, 0, f.svc.locks.size(), "lock entries must be released")
}

type MockDroneStore struct {
	mock.Mock
}

func (m *MockDroneStore) FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	args := m.Called(ctx, serialNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drone.Drone), args.Error(1)
}

func (m *MockDroneStore) FindAll(ctx context.Context) ([]*drone.Drone, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*drone.Drone), args.Error(1)
}

func (m *MockDroneStore) Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drone.Drone), args.Error(1)
}

func TestStoreFailuresAreErrors(t *testing.T) {
	mockStore := new(MockDroneStore)
	logger, _ := zap.NewDevelopment()
	svc := NewService(mockStore, store.NewMemory().Medications(), nil, logger)
	ctx := context.Background()
	boom := errors.New("connection reset")

	mockStore.On("FindByID", mock.Anything, "SN-1").Return(nil, boom)
	mockStore.On("FindAll", mock.Anything).Return(nil, boom)
	mockStore.On("Save", mock.Anything, mock.AnythingOfType("*drone.Drone")).Return(nil, boom)

	res, err := svc.LoadDrone(ctx, "SN-1", newMedication(1))
	assert.Error(t, err)
	assert.Equal(t, Code(""), res.Code)

	_, err = svc.GetDroneByID(ctx, "SN-1")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDroneNotFound))

	_, err = svc.GetBatteryLevel(ctx, "SN-1")
	assert.Error(t, err)

	_, err = svc.GetIdleDrones(ctx)
	assert.Error(t, err)

	assert.Error(t, svc.MarkIdle(ctx, "SN-1"))

	_, err = svc.RegisterDrone(ctx, RegisterRequest{SerialNumber: "SN-2", WeightClass: "LIGHT"})
	assert.ErrorIs(t, err, boom)
}

func TestCountByState(t *testing.T) {
	counts := CountByState([]*drone.Drone{
		{State: drone.StateIdle},
		{State: drone.StateIdle},
		{State: drone.StateReturning},
	})

	assert.Equal(t, 2, counts[drone.StateIdle])
	assert.Equal(t, 1, counts[drone.StateReturning])
	assert.Equal(t, 0, counts[drone.StateDelivering])
	assert.Len(t, counts, 6)
}
