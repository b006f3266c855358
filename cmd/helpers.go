package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	fs = afero.NewOsFs()

	infoPrinter  = color.New(color.Bold)
	errorPrinter = color.New(color.FgRed, color.Bold)
)

const defaultSettingsFile = ".streamsync.yml"

type ErrorResponse struct {
	Error string `json:"error"`
}

func makeLogger(isDebug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if isDebug {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}

	return logger.Sugar()
}

func printError(err error, output string, message string) {
	if output == "json" {
		resp := ErrorResponse{Error: message}
		if err != nil {
			resp.Error = err.Error()
		}

		js, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			fmt.Println(marshalErr)
			return
		}
		fmt.Println(string(js))
		return
	}

	if message != "" {
		errorPrinter.Println(message)
	}
	if err != nil {
		errorPrinter.Println(err)
	}
}

func RecoverFromPanic() {
	if err := recover(); err != nil {
		log.Println("=======================================")
		log.Println("streamsync encountered an unexpected error, please report the issue.")
		log.Println(err)
		log.Println("=======================================")
		b := bufio.NewScanner(bytes.NewBuffer(debug.Stack()))
		for b.Scan() {
			log.Println(b.Text())
		}
		os.Exit(1)
	}
}
