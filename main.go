package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spooky-finn/go-bitso-bridge/config"
	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/spooky-finn/go-bitso-bridge/helpers"
	promclient "github.com/spooky-finn/go-bitso-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-bitso-bridge/provider/bitso"
	"github.com/spooky-finn/go-bitso-bridge/usecase"
)

type tradeLogger struct{}

func (t *tradeLogger) OnNewTrade(trade *domain.Trade) {
	log.Printf("trade: %s", helpers.ToJsonString(trade))
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment as is")
	}

	conf := config.FromEnv()
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}

	symbol, err := domain.NewMarketSymbolFromString(conf.Book)
	if err != nil {
		log.Fatalf("invalid book %q: %s", conf.Book, err)
	}

	syncAPI := bitso.NewSyncAPI(conf.RestEndpoint)
	streamClient := bitso.NewStreamClient(conf.WebsocketEndpoint)
	if err := streamClient.Connect(); err != nil {
		log.Fatalf("failed to connect to the stream websocket: %s", err)
	}
	streamAPI := bitso.NewStreamAPI(streamClient)

	client, err := usecase.NewExchangeClient(symbol, syncAPI, streamAPI, conf)
	if err != nil {
		log.Fatalf("failed to start exchange client: %s", err)
	}
	client.Subscribe(&tradeLogger{})

	go promclient.StartPromClientServer(":8080")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	client.Stop()
	streamClient.Close()
}
