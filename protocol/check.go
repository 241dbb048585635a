/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/destination"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/source"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check connections and configured tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var result *multierror.Error
		if config.Source != nil {
			if err := checkSource(cmd.Context(), config.Source, log); err != nil {
				result = multierror.Append(result, fmt.Errorf("source: %w", err))
			}
		}
		if config.Sink != nil {
			if err := checkSink(cmd.Context(), config.Sink, log); err != nil {
				result = multierror.Append(result, fmt.Errorf("sink: %w", err))
			}
		}

		if err := result.ErrorOrNil(); err != nil {
			log.Error().Err(err).Msg("connection check failed")
			return err
		}
		log.Info().Msg("connection check succeeded")
		return nil
	},
}

// checkSource resolves every source table the way the scheduler would.
func checkSource(ctx context.Context, config *SourceConfig, log zerolog.Logger) error {
	conn, err := jdbc.Open(ctx, &config.Connection, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if version, err := conn.ServerVersion(ctx); err == nil {
		log.Info().Str("adapter", string(config.Connection.Adapter)).Str("flavor", jdbc.Flavor(config.Connection.Adapter, version)).Msgf("source server %s", version)
	}

	var result *multierror.Error
	for _, table := range config.Tables {
		cursor, err := source.NewTableCursor(ctx, conn, table, config.TagPrefix, source.SystemClock, log)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		log.Info().Str("table", cursor.Table()).Str("update_column", cursor.Column()).Str("tag", cursor.Tag()).Msg("source table ok")
	}
	return result.ErrorOrNil()
}

// checkSink verifies that every destination table exists.
func checkSink(ctx context.Context, config *SinkConfig, log zerolog.Logger) error {
	conn, err := jdbc.Open(ctx, &config.Connection, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	router, err := destination.BuildRouter(&config.Config)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, table := range router.Tables() {
		schema, err := conn.DiscoverTable(ctx, table.Name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		log.Info().Str("table", table.Name).Str("pattern", table.Pattern()).Strs("columns", schema.ColumnNames()).Msg("destination table ok")
	}
	return result.ErrorOrNil()
}
