package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wwexlabs/freightdesk/agent/agents/orchestrator"
	"github.com/wwexlabs/freightdesk/agent/carrier"
	composerx "github.com/wwexlabs/freightdesk/agent/composer"
	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	"github.com/wwexlabs/freightdesk/agent/escalation"
	"github.com/wwexlabs/freightdesk/agent/extractor"
	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
	promptx "github.com/wwexlabs/freightdesk/agent/prompt"
	statex "github.com/wwexlabs/freightdesk/agent/state"
	configx "github.com/wwexlabs/freightdesk/pkg/config"
	_ "github.com/wwexlabs/freightdesk/pkg/logger/autoload"
	openrouterx "github.com/wwexlabs/freightdesk/pkg/openrouter"
	qstashx "github.com/wwexlabs/freightdesk/pkg/qstash"
)

func main() {
	ctx := context.Background()

	store := newStateStore()
	engine := newMemoryEngine(ctx)

	openRouterCfg, err := configx.New[openrouterx.Config]("OPENROUTER")
	if err != nil {
		log.Warn().Err(err).Msg("openrouter not configured, extraction runs rule-based only")
		openRouterCfg = nil
	}

	ex := newExtractor(ctx, openRouterCfg)

	gatewayCfg := configx.MustNew[carrier.Config]("CARRIER")
	gateway, err := carrier.NewGateway(*gatewayCfg, carrier.NewMockBackend())
	if err != nil {
		log.Fatal().Err(err).Msg("build carrier gateway")
	}

	sinkCfg := configx.MustNew[escalation.Config]("ESCALATION")
	sinkOpts := []escalation.SinkOption{}
	if qstashCfg, qerr := configx.New[qstashx.Config]("QSTASH"); qerr == nil {
		if client, cerr := qstashx.NewClient(*qstashCfg); cerr == nil {
			sinkOpts = append(sinkOpts, escalation.WithPublisher(client))
		}
	}
	sink := escalation.NewSink(*sinkCfg, sinkOpts...)

	composerCfg := configx.MustNew[composerx.Config]("COMPOSER")
	var composer *composerx.Composer
	if openRouterCfg != nil {
		composer = composerx.New(*composerCfg, openrouterx.NewClient(*openRouterCfg))
	} else {
		composer = composerx.New(*composerCfg, nil)
	}

	orchCfg := configx.MustNew[orchestrator.Config]("ORCHESTRATOR")
	orch, err := orchestrator.New(store, engine, ex, gateway, sink, composer, *orchCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	runREPL(ctx, orch)
}

func newStateStore() statex.Store {
	cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH")
	if err != nil {
		log.Info().Msg("upstash not configured, conversation state held in memory")
		return statex.NewMemoryStore()
	}
	store, err := statex.NewUpstashRedisStore(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("upstash store unavailable, falling back to memory")
		return statex.NewMemoryStore()
	}
	return store
}

func newMemoryEngine(ctx context.Context) *memoryx.Engine {
	cfg := configx.MustNew[memoryx.Config]("MEMORY")
	if !cfg.EnablePersistence {
		return memoryx.NewEngine(*cfg)
	}

	bunStore, err := memoryx.NewBunStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open memory database")
	}
	if err := bunStore.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("init memory schema")
	}
	engine := memoryx.NewEngine(*cfg, memoryx.WithPersister(bunStore))
	if err := engine.Warm(ctx); err != nil {
		log.Fatal().Err(err).Msg("warm memory engine")
	}
	return engine
}

func newExtractor(ctx context.Context, cfg *openrouterx.Config) contractx.Extractor {
	if cfg == nil {
		return extractor.NewRuleBased()
	}
	chatModel, err := cfg.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("chat model unavailable, extraction runs rule-based only")
		return extractor.NewRuleBased()
	}
	prompts := promptx.LoadPromptSet()
	ex, err := extractor.New(ctx, chatModel, prompts.Extractor)
	if err != nil {
		log.Fatal().Err(err).Msg("build extractor")
	}
	return ex
}

func runREPL(ctx context.Context, orch *orchestrator.Orchestrator) {
	conversationID := uuid.NewString()
	fmt.Println("Worldwide Express shipment desk. Ask about a shipment, or 'quit' to exit.")
	fmt.Printf("(conversation %s)\n\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}

		resp, err := orch.HandleTurn(ctx, conversationID, text)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			fmt.Println("agent> Sorry, something went wrong on our side. Please try again.")
			continue
		}
		fmt.Printf("agent> %s\n", resp.Reply)
		if resp.FollowUp {
			fmt.Println("       (flagged for manual follow-up)")
		}
	}
}
