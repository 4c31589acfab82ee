package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/agent/providers"
	"github.com/flowlane/flowlane/internal/agent/routing"
	"github.com/flowlane/flowlane/internal/artifacts"
	"github.com/flowlane/flowlane/internal/auth"
	"github.com/flowlane/flowlane/internal/canvas"
	"github.com/flowlane/flowlane/internal/config"
	"github.com/flowlane/flowlane/internal/coordinator"
	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/observability"
	"github.com/flowlane/flowlane/internal/orchestrator"
	"github.com/flowlane/flowlane/internal/resume"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
	"github.com/flowlane/flowlane/internal/web"
	"github.com/flowlane/flowlane/internal/workflow"
)

// runtime holds every component a running server needs after wiring, the
// way the teacher's cmd/nexus assembles its own long-lived subsystems
// (channel registry, LLM router, DB pool) once at startup and hands them to
// its HTTP/gRPC servers.
type runtime struct {
	cfg              *config.Config
	logger           *slog.Logger
	store            runlog.Store
	hub              *transport.Hub
	workflows        map[string]*workflow.WorkflowConfig
	webHandler       *web.Handler
	artifactsCleanup *artifacts.CleanupService
}

func (r *runtime) workflowNames() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newRuntime builds every C1-C9 component and the HTTP API that fronts
// them. Anything genuinely per-chat-session (the Unified Event Dispatcher,
// since its Persistence leg is tenant-scoped, and the Orchestrator value
// that owns it) is instead built per session inside sessionStarter -- see
// session_starter.go.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	workflows, err := loadWorkflows(cfg.Workspace.ManifestDir)
	if err != nil {
		return nil, fmt.Errorf("loading workflow manifests: %w", err)
	}
	if len(workflows) == 0 {
		logger.Warn("no workflow manifests found", "manifest_dir", cfg.Workspace.ManifestDir)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("building persistence layer: %w", err)
	}

	hub := transport.NewHub(logger)

	// dispatchers maps chat_id -> the session-scoped Dispatcher that chat is
	// currently using, so the Coordinator (a shared, cross-session
	// singleton) and the Hub's own inbound-validation errors can route
	// through the same seq authority and persistence path as every other
	// event on that chat_id, rather than assigning seq from a second,
	// independent counter -- see DispatchEmitter and Hub.SetDispatchers.
	dispatchers := dispatch.NewRegistry()
	hub.SetDispatchers(dispatchers)

	emitter := &coordinator.DispatchEmitter{Registry: dispatchers}
	// ctxStore is nil: the Coordinator's ContextSetter is satisfied by a
	// session's own *ctxstore.Store (built internally by
	// Orchestrator.Start), which isn't available yet at this shared,
	// cross-session Coordinator's construction time. ui_response-triggered
	// context-variable writes (spec.md §4.7's ContextSetter.OnUIResponse
	// hook) are a no-op until a future change threads the per-session store
	// back in; applyUIResponseTriggers treats a nil ctxStore as a safe
	// skip, not an error.
	coord := coordinator.New(emitter, nil, nil)
	// display=artifact UI tool calls (spec.md §4.7 Scenario E3) persist their
	// rendered state through the canvas Manager so a client can fetch an
	// artifact's current state rather than only the live patch stream.
	canvasManager := canvas.NewManager(canvas.NewMemoryStore(), logger)
	canvasManager.SetMetrics(canvas.NewMetrics())
	coord.SetArtifactCanvas(canvasManager)

	resumeCoord := resume.New(store, hub, logger)
	hub.SetCoordinators(coord, resumeCoord)

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("building LLM provider: %w", err)
	}

	executor := buildToolExecutor(cfg)
	asker := &providerAsker{provider: provider}

	eventStore := observability.NewMemoryEventStore(0)
	recorder := observability.NewEventRecorder(eventStore, nil)
	observe := observability.NewDispatchSink(recorder)

	directory := web.NewDirectory()

	artifactRepo, err := buildArtifactRepository(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building artifact repository: %w", err)
	}
	cleanup := artifacts.NewCleanupService(artifactRepo, cfg.Artifacts.PruneInterval, logger)

	starter := &sessionStarter{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		hub:         hub,
		coord:       coord,
		resume:      resumeCoord,
		provider:    provider,
		executor:    executor,
		asker:       asker,
		observe:     observe,
		artifacts:   artifactRepo,
		workflows:   workflows,
		dispatchers: dispatchers,
		canvas:      canvasManager,
	}

	webHandler := web.NewHandler(&web.Config{
		Store:     store,
		Directory: directory,
		Hub:       hub,
		Starter:   starter,
		Logger:    logger,
		Artifacts: artifactRepo,
		Auth:      buildAuthService(cfg),
	})

	return &runtime{
		cfg:              cfg,
		logger:           logger,
		store:            store,
		hub:              hub,
		workflows:        workflows,
		webHandler:       webHandler,
		artifactsCleanup: cleanup,
	}, nil
}

// buildArtifactRepository wires artifacts.Store (local disk or S3, per
// artifacts.backend) to an artifacts.Repository (persisted to disk when
// artifacts.metadata_backend is "file", in-memory otherwise -- the teacher's
// go.mod carries the Postgres driver used elsewhere in this tree, but
// internal/artifacts' own SQLRepository targets a schema no SPEC_FULL.md
// component defines, so it is left unwired here; see DESIGN.md).
func buildArtifactRepository(cfg *config.Config, logger *slog.Logger) (artifacts.Repository, error) {
	ac := cfg.Artifacts
	if len(ac.TTLs) > 0 {
		artifacts.SetDefaultTTLs(ac.TTLs)
	}

	var store artifacts.Store
	switch ac.Backend {
	case "s3", "minio":
		s3Cfg := &artifacts.S3StoreConfig{
			Bucket:          ac.S3Bucket,
			Region:          ac.S3Region,
			Endpoint:        ac.S3Endpoint,
			Prefix:          ac.S3Prefix,
			AccessKeyID:     ac.S3AccessKeyID,
			SecretAccessKey: ac.S3SecretAccessKey,
			UsePathStyle:    ac.Backend == "minio",
		}
		s3Store, err := artifacts.NewS3Store(context.Background(), s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("building s3 artifact store: %w", err)
		}
		store = s3Store
	default:
		localStore, err := artifacts.NewLocalStore(ac.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("building local artifact store: %w", err)
		}
		store = localStore
	}

	if ac.MetadataBackend == "file" && ac.MetadataPath != "" {
		return artifacts.NewPersistentRepository(store, ac.MetadataPath, logger)
	}
	return artifacts.NewMemoryRepository(store, logger), nil
}

func buildStore(cfg *config.Config) (runlog.Store, error) {
	if cfg.Database.URL == "" {
		return runlog.NewMemoryStore(), nil
	}
	return runlog.NewPostgresStoreFromDSN(cfg.Database.URL, &runlog.Config{
		MaxOpenConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

// buildAuthService converts the static auth.* config section into an
// auth.Service, the way the teacher turns its own AuthConfig into a
// middleware-ready service at startup. No jwt_secret and no api_keys
// configured yields a Service whose Enabled() is false, so AuthMiddleware
// stays a no-op by default rather than locking operators out of an
// unconfigured deployment.
func buildAuthService(cfg *config.Config) *auth.Service {
	keys := make([]auth.APIKeyConfig, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys = append(keys, auth.APIKeyConfig{
			Key:    k.Key,
			UserID: k.UserID,
			Email:  k.Email,
			Name:   k.Name,
		})
	}
	service := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     keys,
	})

	if google := cfg.Auth.OAuth.Google; google.ClientID != "" {
		service.RegisterProvider("google", auth.NewGoogleProvider(auth.OAuthProviderConfig{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
		}))
	}
	if github := cfg.Auth.OAuth.GitHub; github.ClientID != "" {
		service.RegisterProvider("github", auth.NewGitHubProvider(auth.OAuthProviderConfig{
			ClientID:     github.ClientID,
			ClientSecret: github.ClientSecret,
			RedirectURL:  github.RedirectURL,
		}))
	}
	if cfg.Auth.OAuth.Google.ClientID != "" || cfg.Auth.OAuth.GitHub.ClientID != "" {
		service.SetUserStore(web.NewMemoryUserStore())
	}

	return service
}

// buildProvider assembles every LLM provider llm.default_provider,
// llm.fallback_chain, and llm.providers name, then -- when more than one
// comes back reachable -- wraps them in a routing.Router so a failing
// provider falls through to the chain instead of failing the run outright.
// Each provider's credential is resolved through an auth.ProfileStore seeded
// from llm.providers.<name>.profiles, rotating to the next configured key
// the way the teacher's multi-credential providers do on repeated failure.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	profiles := buildProfileStore(cfg)

	names := providerNames(cfg)
	built := make(map[string]agent.LLMProvider, len(names))
	for _, name := range names {
		p, err := buildNamedProvider(name, cfg.LLM.Providers[name], profiles)
		if err != nil {
			return nil, err
		}
		built[name] = p
	}

	defaultName := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultName == "" {
		defaultName = "anthropic"
	}
	if _, ok := built[defaultName]; !ok {
		return nil, fmt.Errorf("unknown llm provider %q", defaultName)
	}
	if len(built) == 1 {
		return built[defaultName], nil
	}

	fallback := routing.Target{Provider: cfg.LLM.Routing.Fallback.Provider, Model: cfg.LLM.Routing.Fallback.Model}
	if fallback.Provider == "" && len(cfg.LLM.FallbackChain) > 0 {
		fallback.Provider = cfg.LLM.FallbackChain[0]
	}

	rules := make([]routing.Rule, 0, len(cfg.LLM.Routing.Rules))
	for _, r := range cfg.LLM.Routing.Rules {
		rules = append(rules, routing.Rule{
			Name:   r.Name,
			Match:  routing.Match{Patterns: r.Match.Patterns, Tags: r.Match.Tags},
			Target: routing.Target{Provider: r.Target.Provider, Model: r.Target.Model},
		})
	}

	return routing.NewRouter(routing.Config{
		DefaultProvider: defaultName,
		Rules:           rules,
		Fallback:        fallback,
		FailureCooldown: cfg.LLM.Routing.UnhealthyCooldown,
	}, built), nil
}

// providerNames returns every provider name this runtime knows how to build
// (currently openai and anthropic) that llm.default_provider,
// llm.fallback_chain, or llm.providers names, so the router always has every
// reachable candidate available regardless of which one is the default.
func providerNames(cfg *config.Config) []string {
	seen := map[string]struct{}{}
	var names []string
	add := func(raw string) {
		n := strings.ToLower(strings.TrimSpace(raw))
		if n != "openai" && n != "anthropic" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	add(cfg.LLM.DefaultProvider)
	for _, n := range cfg.LLM.FallbackChain {
		add(n)
	}
	for n := range cfg.LLM.Providers {
		add(n)
	}
	if len(names) == 0 {
		add("anthropic")
	}
	return names
}

// buildProfileStore seeds an auth.ProfileStore from each configured
// provider's profiles map, giving buildNamedProvider multiple rotatable
// credentials per provider instead of the single static api_key.
func buildProfileStore(cfg *config.Config) *auth.ProfileStore {
	store := auth.NewProfileStore()
	for name, providerCfg := range cfg.LLM.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		for profileID, profile := range providerCfg.Profiles {
			store.AddProfile(name+":"+profileID, auth.ProfileCredential{
				Type:     auth.CredentialAPIKey,
				Provider: name,
				Key:      profile.APIKey,
			})
		}
	}
	return store
}

// resolveAPIKey prefers a rotated profile credential over the provider's
// static api_key. The chosen profileID (empty for the static key) is
// returned alongside so the caller can wrap the built provider in a
// profileTrackingProvider that reports completion outcomes back to the
// same profile.
func resolveAPIKey(name string, providerCfg config.LLMProviderConfig, profiles *auth.ProfileStore) (apiKey, profileID string) {
	if cred, id, err := profiles.GetCredential(name); err == nil && cred != nil {
		if cred.Key != "" {
			return cred.Key, id
		}
	}
	return providerCfg.APIKey, ""
}

func buildNamedProvider(name string, providerCfg config.LLMProviderConfig, profiles *auth.ProfileStore) (agent.LLMProvider, error) {
	apiKey, profileID := resolveAPIKey(name, providerCfg, profiles)

	var (
		built agent.LLMProvider
		err   error
	)
	switch name {
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		built = providers.NewOpenAIProvider(apiKey)
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		built, err = providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  apiKey,
			BaseURL: providerCfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
	if err != nil {
		return nil, err
	}
	if profileID == "" {
		return built, nil
	}
	return &profileTrackingProvider{LLMProvider: built, profiles: profiles, profileID: profileID}, nil
}

// profileTrackingProvider reports a rotated credential's completion outcome
// back to the auth.ProfileStore it was drawn from: a clean stream marks the
// profile healthy, a synchronous or mid-stream error puts it into cooldown
// (auth.ProfileStore.MarkFailure) so the next GetCredential call skips it in
// favor of another profile, instead of retrying the same bad key forever.
type profileTrackingProvider struct {
	agent.LLMProvider
	profiles  *auth.ProfileStore
	profileID string
}

func (p *profileTrackingProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks, err := p.LLMProvider.Complete(ctx, req)
	if err != nil {
		p.profiles.MarkFailure(p.profileID)
		return nil, err
	}

	out := make(chan *agent.CompletionChunk)
	go func() {
		defer close(out)
		ok := true
		for chunk := range chunks {
			if chunk.Error != nil {
				ok = false
			}
			out <- chunk
		}
		if ok {
			p.profiles.MarkSuccess(p.profileID)
		} else {
			p.profiles.MarkFailure(p.profileID)
		}
	}()
	return out, nil
}

// autoToolAgentNames returns the agents a workflow manifest marks
// auto_tool_mode=true, for transport.NewVisibilityFilter's second filter
// stage.
func autoToolAgentNames(cfg *workflow.WorkflowConfig) []string {
	var names []string
	for name, spec := range cfg.Agents {
		if spec.AutoToolMode {
			names = append(names, name)
		}
	}
	return names
}
