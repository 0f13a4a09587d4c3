// Package agentloop runs the tool-calling agent: a bounded loop of streamed
// completions in which the model calls tools by writing a tagged block in
// its reply.
//
// The protocol is plain text so it works with any chat model:
//
//	<tool_call>
//	function: read_file
//	arguments: {"file_path": "notes.md"}
//	</tool_call>
//
// ParseToolCall reads the first such block. Session.Submit streams each
// reply to the caller as chunk events, executes the call through an
// Executor, feeds the result back as a <tool_result> user message and emits
// it as a tool_result event. The loop ends on a reply without a call or
// after SessionConfig.MaxTurns completion requests.
//
//	env := agentloop.NewLocalExecutionEnvironment(root)
//	reg := agentloop.NewToolRegistry(env)
//	agentloop.RegisterCoreTools(reg, 0, 0)
//	s := agentloop.NewSession(client, agentloop.NewProfile(model), reg, nil, logger)
//	for ev := range s.Run(ctx, agentloop.Input{Query: q}) {
//		fmt.Print(ev.Content)
//	}
package agentloop
