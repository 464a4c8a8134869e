package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gmbyapa/krest/gateway"
)

var configFile = flag.String(`config`, ``, `Path to a yaml config file`)

var bootstrapServers = flag.String(`bootstrap-servers`, ``,
	`A comma seperated list Kafka Bootstrap Servers (overrides the config file)`)

var host = flag.String(`host`, ``, `REST API listener address, eg: :8082 (overrides the config file)`)

var adaptor = flag.String(`adaptor`, ``,
	`Kafka client adaptor: sarama, librd, franz or kafkago (overrides the config file)`)

func main() {
	flag.Parse()

	config := gateway.NewConfig()
	if *configFile != `` {
		conf, err := gateway.LoadConfig(*configFile)
		if err != nil {
			println(err.Error())
			os.Exit(1)
		}
		config = conf
	}

	if *bootstrapServers != `` {
		config.Admin.BootstrapServers = strings.Split(*bootstrapServers, `,`)
	}

	if *host != `` {
		config.Host = *host
	}

	if *adaptor != `` {
		config.Admin.Adaptor = gateway.Adaptor(*adaptor)
	}

	gw, err := gateway.New(config)
	if err != nil {
		println(err.Error())
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigs
		gw.Stop()
	}()

	if err := gw.Run(); err != nil {
		config.Logger.Error(err)
		os.Exit(1)
	}
}
