// Package contextd provides an embeddable Go client for the contextd
// retrieval and response pipeline, backed by Redis with search modules.
//
// The client runs the full pipeline in-process: conversation memory,
// hybrid knowledge retrieval, context aggregation and quality-checked
// response generation.
//
//	client, _ := contextd.New(ctx,
//	    contextd.WithRedis("localhost:6379", ""),
//	    contextd.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer client.Close()
//
//	result := client.Respond(ctx, contextd.Request{
//	    ConversationID: "conv-1",
//	    AssistantID:    "asst-1",
//	    BusinessID:     "biz-1",
//	    Message:        "How do I request a refund?",
//	})
//
// Retrieval without generation is available through Context, which
// returns the aggregated context that would feed the generator.
package contextd
