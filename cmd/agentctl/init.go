// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/config"
)

func newInitCommand() *cobra.Command {
	var nonInteractive string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Store a machine identity token for agentd to pick up at startup",
		Long: "init stores a machine identity token in the OS keyring, where config.Load\n" +
			"checks for it ahead of the MACHINE_ID environment variable. Run this once per\n" +
			"host before the daemon's first start, or pass --token to skip the prompt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := nonInteractive
			if token == "" {
				prompt := &survey.Input{
					Message: "Machine identity token:",
				}
				if err := survey.AskOne(prompt, &token, survey.WithValidator(survey.Required)); err != nil {
					return fmt.Errorf("reading machine identity token: %w", err)
				}
			}

			if err := config.SetMachineIDInKeyring(token); err != nil {
				return fmt.Errorf("storing machine identity token: %w", err)
			}

			fmt.Println("machine identity stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&nonInteractive, "token", "", "machine identity token; skips the interactive prompt")
	return cmd
}
