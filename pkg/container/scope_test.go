package container_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
)

type ScopeTestSuite struct {
	suite.Suite
	events *events
	domain *container.Domain
}

func TestScopeTestSuite(t *testing.T) {
	suite.Run(t, new(ScopeTestSuite))
}

func (s *ScopeTestSuite) SetupTest() {
	s.events = &events{}
	s.domain = container.NewDomain("test", newTypes(s.events), quietConfig())
}

func (s *ScopeTestSuite) TearDownTest() {
	s.NoError(s.domain.Close())
}

func (s *ScopeTestSuite) open(cfg container.ScopeConfig) *container.Scope {
	scope, err := s.domain.CreateScope(cfg)
	s.Require().NoError(err)
	s.Require().NoError(scope.Start())
	return scope
}

func memory(name string, objects ...param.Parameter) container.ProviderConfig {
	return container.ProviderConfig{Name: name, Type: memoryType, InitParameters: objects}
}

func echo(name string) container.ServiceConfig {
	return container.ServiceConfig{Name: name, Type: echoType}
}

func (s *ScopeTestSuite) TestCreateProvider() {
	scope, err := s.domain.NewScope("app", nil, nil)
	s.Require().NoError(err)

	provider, err := scope.CreateProvider("db", memoryType, param.Parameters{{Name: "dsn", Value: "postgres://localhost"}})
	s.Require().NoError(err)
	s.Equal("db", provider.Name())
	s.Same(provider, scope.GetProvider("db"))

	obj, err := scope.GetObject("db", "dsn")
	s.Require().NoError(err)
	s.Equal("postgres://localhost", obj)

	s.Run("UnknownObject", func() {
		obj, err := scope.GetObject("db", "nothing")
		s.NoError(err)
		s.Nil(obj)
	})

	s.Run("ProviderFailure", func() {
		_, err := scope.GetObject("db", "broken")
		s.ErrorIs(err, container.ErrProvider)
		s.ErrorContains(err, "backing store unavailable")
	})

	s.Run("Duplicate", func() {
		_, err := scope.CreateProvider("db", memoryType, nil)
		s.ErrorIs(err, container.ErrConfiguration)
		s.ErrorContains(err, "provider 'db' already registered in scope 'app'")
	})

	s.Run("EmptyName", func() {
		_, err := scope.CreateProvider("", memoryType, nil)
		s.ErrorIs(err, container.ErrConfiguration)
	})

	s.Run("UnknownType", func() {
		_, err := scope.CreateProvider("cache", "redis", nil)
		s.ErrorIs(err, container.ErrConfiguration)
		s.ErrorContains(err, "unknown provider type 'redis'")
	})

	s.Run("IncompatibleType", func() {
		_, err := scope.CreateProvider("cache", echoType, nil)
		s.ErrorIs(err, container.ErrConfiguration)
		s.ErrorContains(err, "object-factory capability")

		_, err = scope.CreateService("mailer", memoryType, nil)
		s.ErrorIs(err, container.ErrConfiguration)
		s.ErrorContains(err, "operation-dispatch capability")
	})

	s.Run("FactoryFailure", func() {
		_, err := scope.CreateProvider("disk", failType, nil)
		s.ErrorIs(err, container.ErrProvider)
		s.ErrorContains(err, "disk full")
		s.Nil(scope.GetProvider("disk"), "failed providers are not registered")
	})

	s.Equal([]string{"db"}, scope.ProviderNames())
}

func (s *ScopeTestSuite) TestProvidersAreScopeLocal() {
	parent := s.open(container.ScopeConfig{
		Name:      "parent",
		Providers: []container.ProviderConfig{memory("db", param.Parameter{Name: "dsn", Value: "parent-dsn"})},
		Services:  []container.ServiceConfig{echo("mailer")},
	})
	child := s.open(container.ScopeConfig{Name: "child", Parent: "parent"})

	_, err := child.GetObject("db", "dsn")
	s.ErrorIs(err, container.ErrNotFound)
	s.ErrorContains(err, "provider 'db' not found")
	s.Nil(child.GetProvider("db"))

	s.Same(parent.GetService("mailer"), child.GetService("mailer"))
	out, err := child.GetService("mailer").Execute("echo", map[string]any{"value": 42})
	s.Require().NoError(err)
	s.Equal(42, out)
}

func (s *ScopeTestSuite) TestServiceResolutionOrder() {
	root := s.open(container.ScopeConfig{Name: "root", Services: []container.ServiceConfig{echo("mailer"), echo("audit")}})
	child := s.open(container.ScopeConfig{Name: "child", Parent: "root", Services: []container.ServiceConfig{echo("mailer")}})
	sibling := s.open(container.ScopeConfig{Name: "sibling", Services: []container.ServiceConfig{echo("billing")}})

	s.NotSame(root.GetService("mailer"), child.GetService("mailer"), "local services shadow the parent's")
	s.Same(root.GetService("audit"), child.GetService("audit"))
	s.Same(sibling.GetService("billing"), child.GetService("billing"))
	s.Same(sibling.GetService("billing"), root.GetService("billing"))

	s.Nil(child.GetService("missing"))
	_, err := child.RequireService("missing")
	s.ErrorIs(err, container.ErrNotFound)
	s.ErrorContains(err, "service 'missing' not found")

	svc, err := child.RequireService("audit")
	s.Require().NoError(err)
	s.Equal("audit", svc.Name())
	s.Equal([]string{"mailer"}, child.ServiceNames())
}

func (s *ScopeTestSuite) TestClosedSiblingIsSkipped() {
	a := s.open(container.ScopeConfig{Name: "a"})
	b := s.open(container.ScopeConfig{Name: "b", Services: []container.ServiceConfig{echo("billing")}})
	s.NotNil(a.GetService("billing"))

	s.Require().NoError(b.Close())
	s.Nil(a.GetService("billing"))
}

func (s *ScopeTestSuite) TestObjectReferences() {
	s.open(container.ScopeConfig{
		Name:      "infra",
		Providers: []container.ProviderConfig{memory("db", param.Parameter{Name: "dsn", Value: "infra-dsn"})},
	})
	app := s.open(container.ScopeConfig{
		Name: "app",
		ObjectReferences: []container.ObjectReferenceConfig{
			{Name: "database", Provider: "db", Object: "dsn"},
			{Name: "dangling", Provider: "cache", Object: "url"},
		},
	})

	obj, err := app.GetReferencedObject("database")
	s.Require().NoError(err)
	s.Equal("infra-dsn", obj, "references resolve providers in sibling scopes")

	_, err = app.GetReferencedObject("dangling")
	s.ErrorIs(err, container.ErrNotFound)
	s.ErrorContains(err, "provider 'cache' not found")

	_, err = app.GetReferencedObject("unknown")
	s.ErrorIs(err, container.ErrNotFound)
	s.ErrorContains(err, "object reference 'unknown' not found")

	s.ErrorIs(app.CreateObjectReference("database", "db", "dsn"), container.ErrConfiguration)
	s.ErrorIs(app.CreateObjectReference("partial", "", "dsn"), container.ErrConfiguration)
}

func (s *ScopeTestSuite) TestObjectReferencePrefersAncestor() {
	s.open(container.ScopeConfig{Name: "a-sibling", Providers: []container.ProviderConfig{memory("db", param.Parameter{Name: "dsn", Value: "sibling"})}})
	s.open(container.ScopeConfig{Name: "parent", Providers: []container.ProviderConfig{memory("db", param.Parameter{Name: "dsn", Value: "parent"})}})
	child := s.open(container.ScopeConfig{
		Name:             "child",
		Parent:           "parent",
		ObjectReferences: []container.ObjectReferenceConfig{{Name: "database", Provider: "db", Object: "dsn"}},
	})

	obj, err := child.GetReferencedObject("database")
	s.Require().NoError(err)
	s.Equal("parent", obj)
}

func (s *ScopeTestSuite) TestStartAndCloseOrder() {
	parent := s.open(container.ScopeConfig{
		Name:      "parent",
		Providers: []container.ProviderConfig{memory("p1"), memory("p2")},
		Services:  []container.ServiceConfig{echo("s1"), echo("s2")},
	})
	child := s.open(container.ScopeConfig{Name: "child", Parent: "parent", Providers: []container.ProviderConfig{memory("c1")}})

	s.Equal(container.StateRunning, parent.State())
	s.Equal([]*container.Scope{child}, parent.Children())

	s.Require().NoError(parent.Close())
	s.Equal([]string{
		"create provider p1",
		"create provider p2",
		"create service s1",
		"create service s2",
		"create provider c1",
		"close provider c1",
		"close service s2",
		"close service s1",
		"close provider p2",
		"close provider p1",
	}, s.events.all())

	s.Equal(container.StateClosed, child.State())
	s.Empty(parent.Children())
	_, ok := s.domain.Lookup("child")
	s.False(ok)

	s.NoError(parent.Close(), "closing twice does nothing")
}

func (s *ScopeTestSuite) TestStartIsIdempotent() {
	scope := s.open(container.ScopeConfig{Name: "app", Providers: []container.ProviderConfig{memory("p1")}})
	s.Require().NoError(scope.Start())
	s.Equal([]string{"create provider p1"}, s.events.all())
}

func (s *ScopeTestSuite) TestFailedStartClosesScope() {
	scope, err := s.domain.CreateScope(container.ScopeConfig{
		Name: "app",
		Providers: []container.ProviderConfig{
			memory("p1"),
			{Name: "disk", Type: failType},
			memory("p3"),
		},
		Services: []container.ServiceConfig{echo("s1")},
	})
	s.Require().NoError(err)

	err = scope.Start()
	s.ErrorIs(err, container.ErrProvider)
	s.ErrorContains(err, "failed to create provider 'disk' of type 'fail'")
	s.ErrorContains(err, "disk full")

	s.Equal(container.StateClosed, scope.State())
	s.Equal([]string{"create provider p1", "create provider disk", "close provider p1"}, s.events.all())
	_, ok := s.domain.Lookup("app")
	s.False(ok)

	s.ErrorIs(scope.Start(), container.ErrIllegalState)
}

func (s *ScopeTestSuite) TestLazyDeclarations() {
	lazy := memory("lazy", param.Parameter{Name: "k", Value: "v"})
	lazy.Lazy = true
	scope := s.open(container.ScopeConfig{
		Name:      "app",
		Providers: []container.ProviderConfig{memory("eager"), lazy, {Name: "disk", Type: failType, Lazy: true}},
		Services:  []container.ServiceConfig{{Name: "mailer", Type: echoType, Lazy: true}},
	})
	s.Equal([]string{"create provider eager"}, s.events.all())

	obj, err := scope.GetObject("lazy", "k")
	s.Require().NoError(err)
	s.Equal("v", obj)
	s.NotNil(scope.GetService("mailer"))

	_, err = scope.GetObject("disk", "x")
	s.ErrorIs(err, container.ErrProvider)
	_, err = scope.GetObject("disk", "x")
	s.ErrorIs(err, container.ErrProvider)

	s.Equal([]string{
		"create provider eager",
		"create provider lazy",
		"create service mailer",
		"create provider disk",
	}, s.events.all(), "a failed lazy build is not retried")
}

func (s *ScopeTestSuite) TestEagerDeclarationsWaitForStart() {
	scope, err := s.domain.CreateScope(container.ScopeConfig{
		Name:      "app",
		Providers: []container.ProviderConfig{memory("db", param.Parameter{Name: "dsn", Value: "x"})},
	})
	s.Require().NoError(err)
	s.Equal(container.StateCreated, scope.State())

	_, err = scope.GetObject("db", "dsn")
	s.ErrorIs(err, container.ErrNotFound)
	s.Empty(s.events.all())

	s.Require().NoError(scope.Start())
	obj, err := scope.GetObject("db", "dsn")
	s.Require().NoError(err)
	s.Equal("x", obj)

	s.Require().NoError(scope.DeclareProvider(memory("late")))
	s.NotNil(scope.GetProvider("late"), "declarations on a running scope are built at once")
}

func (s *ScopeTestSuite) TestRegisterComponents() {
	scope, err := s.domain.NewScope("app", nil, nil)
	s.Require().NoError(err)

	provider := &memoryProvider{ComponentBase: container.NewComponentBase("inline"), objects: map[string]any{"k": 1}, events: s.events}
	s.Require().NoError(scope.RegisterProvider(provider))
	s.Same(provider, scope.GetProvider("inline"))
	s.ErrorIs(scope.RegisterProvider(provider), container.ErrConfiguration)
	s.ErrorIs(scope.RegisterProvider(nil), container.ErrConfiguration)

	service := &echoService{ComponentBase: container.NewComponentBase("inline"), events: s.events}
	s.Require().NoError(scope.RegisterService(service))
	s.Same(service, scope.GetService("inline"))
	s.ErrorIs(scope.RegisterService(nil), container.ErrConfiguration)

	s.Require().NoError(scope.Close())
	s.Equal([]string{"close service inline", "close provider inline"}, s.events.all())
}

func (s *ScopeTestSuite) TestInitParameters() {
	parent, err := s.domain.NewScope("parent", nil, param.Parameters{{Name: "region", Value: "eu"}})
	s.Require().NoError(err)
	child, err := s.domain.NewScope("child", parent, nil)
	s.Require().NoError(err)

	s.Equal("eu", parent.InitParameter("region"))
	s.Nil(child.InitParameter("region"), "init parameters are not inherited")

	s.Require().NoError(parent.SetInitParameter("region", "us"))
	s.Require().NoError(parent.SetInitParameter("zone", "a"))
	s.Equal(param.Parameters{{Name: "region", Value: "us"}, {Name: "zone", Value: "a"}}, parent.InitParameters())

	s.Require().NoError(parent.Start())
	err = parent.SetInitParameter("region", "ap")
	s.ErrorIs(err, container.ErrIllegalState)
	s.Equal("us", parent.InitParameter("region"))
}

func (s *ScopeTestSuite) TestClosedScope() {
	scope := s.open(container.ScopeConfig{Name: "app", Providers: []container.ProviderConfig{memory("db")}, Services: []container.ServiceConfig{echo("mailer")}})
	s.Require().NoError(scope.Close())

	_, err := scope.GetObject("db", "x")
	s.ErrorIs(err, container.ErrIllegalState)
	_, err = scope.CreateProvider("other", memoryType, nil)
	s.ErrorIs(err, container.ErrIllegalState)
	s.ErrorIs(scope.DeclareService(echo("other")), container.ErrIllegalState)
	s.ErrorIs(scope.CreateObjectReference("ref", "db", "x"), container.ErrIllegalState)
	s.ErrorIs(scope.SetInitParameter("k", "v"), container.ErrIllegalState)
	s.Nil(scope.GetService("mailer"))
	s.Nil(scope.GetProvider("db"))
}

func (s *ScopeTestSuite) TestCloseErrorsAreJoined() {
	scope := s.open(container.ScopeConfig{
		Name: "app",
		Providers: []container.ProviderConfig{
			memory("p1", param.Parameter{Name: "panic-on-close", Value: "true"}),
			memory("p2"),
		},
		Services: []container.ServiceConfig{{
			Name:           "s1",
			Type:           echoType,
			InitParameters: param.Parameters{{Name: "close-error", Value: "flush failed"}},
		}},
	})

	err := scope.Close()
	s.Require().Error(err)
	s.ErrorContains(err, "closing service 's1': flush failed")
	s.ErrorContains(err, "panic while closing provider 'p1': close exploded")
	s.Equal(container.StateClosed, scope.State())
	s.Equal([]string{
		"create provider p1",
		"create provider p2",
		"create service s1",
		"close service s1",
		"close provider p2",
		"close provider p1",
	}, s.events.all())
}

func (s *ScopeTestSuite) TestLogForwardsToLogService() {
	parent := s.open(container.ScopeConfig{Name: "parent", Services: []container.ServiceConfig{echo(container.DefaultLogService)}})
	child := s.open(container.ScopeConfig{Name: "child", Parent: "parent"})
	logService := parent.GetService(container.DefaultLogService).(*echoService)

	child.Log("hello", container.LevelWarn)
	_, err := child.GetObject("missing", "x")
	s.ErrorIs(err, container.ErrNotFound)

	s.Equal([]string{
		"WARN hello",
		"WARN [NOT_FOUND] provider 'missing' not found",
	}, logService.logged)

	s.Require().NoError(child.Close())
	child.Log("after close", container.LevelInfo)
	s.Len(logService.logged, 2)
}

func (s *ScopeTestSuite) TestLogWithoutService() {
	scope := s.open(container.ScopeConfig{Name: "app"})
	s.NotPanics(func() { scope.Log("nobody listens", container.LevelInfo) })
}

func (s *ScopeTestSuite) TestValidate() {
	tests := []struct {
		name string
		cfg  container.ScopeConfig
		want string
	}{
		{"MissingName", container.ScopeConfig{}, "ScopeConfig.Name is required"},
		{"ProviderType", container.ScopeConfig{Name: "app", Providers: []container.ProviderConfig{{Name: "db"}}}, "ScopeConfig.Providers[0].Type is required"},
		{"ClientConnector", container.ScopeConfig{Name: "app", Services: []container.ServiceConfig{{
			Name: "log", Type: echoType, Clients: []container.ClientConfig{{Name: "console"}},
		}}}, "ScopeConfig.Services[0].Clients[0].Connector is required"},
		{"ReferenceObject", container.ScopeConfig{Name: "app", ObjectReferences: []container.ObjectReferenceConfig{{Name: "r", Provider: "db"}}}, "ScopeConfig.ObjectReferences[0].Object is required"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.cfg.Validate()
			s.ErrorIs(err, container.ErrConfiguration)
			s.ErrorContains(err, tt.want)

			_, err = s.domain.CreateScope(tt.cfg)
			s.ErrorIs(err, container.ErrConfiguration)
		})
	}

	valid := container.ScopeConfig{Name: "app", Providers: []container.ProviderConfig{memory("db")}}
	s.NoError(valid.Validate())
}

func (s *ScopeTestSuite) TestStateNames() {
	s.Equal("created", container.StateCreated.String())
	s.Equal("running", container.StateRunning.String())
	s.Equal("closed", container.StateClosed.String())
}

func (s *ScopeTestSuite) TestBuildFinishingAfterCloseIsReleased() {
	entered := make(chan struct{})
	release := make(chan struct{})
	types := newTypes(s.events)
	s.Require().NoError(types.RegisterProvider("slow", func(ctx container.ComponentContext) (container.Provider, error) {
		close(entered)
		<-release
		return &memoryProvider{ComponentBase: container.NewComponentBase(ctx.Name), events: s.events}, nil
	}))

	domain := container.NewDomain("late", types, quietConfig())
	defer domain.Close()
	scope, err := domain.CreateScope(container.ScopeConfig{
		Name:      "app",
		Providers: []container.ProviderConfig{{Name: "watcher", Type: "slow", Lazy: true}},
	})
	s.Require().NoError(err)
	s.Require().NoError(scope.Start())

	result := make(chan error, 1)
	go func() {
		_, err := scope.GetObject("watcher", "x")
		result <- err
	}()

	<-entered
	s.Require().NoError(scope.Close())
	close(release)

	select {
	case err := <-result:
		s.ErrorIs(err, container.ErrIllegalState)
	case <-time.After(5 * time.Second):
		s.FailNow("lookup did not return")
	}
	s.Equal([]string{"close provider watcher"}, s.events.all())
}
