package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const toolVersion = "0.9.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "linkgraph",
	Short: "Throughput and delay analysis for link traces",
	Long: `linkgraph ingests timestamped link traces (packet arrivals, departures
with measured delay, link capacity samples) recorded by a link emulator and
produces summary statistics, a time-binned rate series, and throughput or
signal-delay graphs as gnuplot scripts or PNG images.`,
}

func main() {
	defer glog.Flush()
	// Diagnostics go to stderr unless the caller overrides the glog flags.
	goflag.Set("logtostderr", "true")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "linkgraph:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.linkgraph.yaml)")
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(frompcapCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".linkgraph")
	}
	viper.SetEnvPrefix("linkgraph")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		glog.V(1).Infof("[config] using %s", viper.ConfigFileUsed())
	}
}
