// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/sparkify/lake/sparkify"
	"github.com/spf13/cobra"
)

// QueryMain is wrapped by NewQueryCommand and only exported for testing purposes.
var QueryMain *sparkify.QueryMain

// NewQueryCommand returns a new cobra command wrapping QueryMain.
func NewQueryCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	QueryMain = sparkify.NewQueryMain()
	QueryMain.SetOutput(stdout)
	queryCommand := &cobra.Command{
		Use:   "query",
		Short: "query - run SQL against the tables of a finished run",
		Long: `Registers each table under output-data as a view and runs either a
canned query or the statement given with --statement.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return QueryMain.Run()
		},
	}
	flags := queryCommand.Flags()
	err := commandeer.Flags(flags, QueryMain)
	if err != nil {
		panic(err)
	}
	return queryCommand
}

func init() {
	subcommandFns["query"] = NewQueryCommand
}
