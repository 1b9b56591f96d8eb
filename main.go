package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/COSAE-FR/riarp/base"
	"github.com/digineo/goldflags"
	log "github.com/sirupsen/logrus"
	"gopkg.in/hlandau/easyconfig.v1"
	"gopkg.in/hlandau/service.v2"
	"gopkg.in/hlandau/svcutils.v1/exepath"
)

type Config struct {
	File string `usage:"ARP daemon configuration file" default:"riarp.yml"`
}

func New(cfg Config) (*base.Server, error) {
	configFile, err := goldflags.ExpandPath(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("cannot expand configuration path %s: %w", cfg.File, err)
	}
	if !goldflags.PathExist(configFile) && !filepath.IsAbs(cfg.File) {
		// daemonized processes may not run from the install directory
		if alt := filepath.Join(filepath.Dir(exepath.Abs), cfg.File); goldflags.PathExist(alt) {
			configFile = alt
		}
	}
	if !goldflags.PathExist(configFile) {
		return nil, fmt.Errorf("configuration file %s not found", configFile)
	}
	configuration, errs := base.LoadConfig(configFile)
	if len(configuration.LogFile) > 0 {
		logFile, err := goldflags.ExpandPath(configuration.LogFile)
		if err != nil {
			logFile = configuration.LogFile
		}
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err == nil {
			configuration.LogFileWriter = f
			log.SetOutput(f)
		} else {
			log.Errorf("Cannot open log file %s. Logging to stdout.", configuration.LogFile)
		}
	} else {
		configuration.LogFileWriter = os.Stderr
	}
	logLevel, err := log.ParseLevel(configuration.LogLevel)
	if err != nil {
		logLevel = log.WarnLevel
	}
	log.SetLevel(logLevel)
	configuration.Log = log.WithFields(log.Fields{
		"app": "riarp",
	})
	if len(errs) > 0 {
		log.Errorf("Found %d error(s) loading the config file:", len(errs))
		for i, e := range errs {
			log.Errorf("Error %d: %s", i, e.Error())
		}
		return configuration, errors.New("errors when parsing config file")
	}

	log.Infof("Starting capturing server on interface %s", configuration.Interface)
	configuration.Handler, err = base.NewHandler(configuration.Iface)
	if err != nil {
		return configuration, fmt.Errorf("cannot bind to interface %s", configuration.Interface)
	}
	log.Debugf("Setting capturing filter: %s", base.ARPFilter)
	if err = configuration.Handler.SetFilter(base.ARPFilter); err != nil {
		log.Errorf("cannot set capturing server filter: %v", err)
	}

	return configuration, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
		QuoteEmptyFields:       true,
	})
	log.SetOutput(os.Stderr)

	cfg := Config{}

	configurator := &easyconfig.Configurator{
		ProgramName: "riarp",
	}

	err := easyconfig.Parse(configurator, &cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Debugf("Started with %#v", cfg)
	service.Main(&service.Info{
		Name:      "riarp",
		AllowRoot: true,
		NewFunc: func() (service.Runnable, error) {
			return New(cfg)
		},
	})
}
