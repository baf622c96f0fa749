package bot

// User-facing reply texts. The service fronts a WeChat Official Account,
// so these stay in Chinese.
const (
	onboardingText = "欢迎使用视频助手！\n请发送B站视频链接，我将为您下载并处理视频内容。"

	ackText = "收到您的视频链接，正在后台处理中，完成后会通知您，请稍候..."

	busyText = "当前处理任务较多，请稍后再发送链接重试。"

	invalidLinkText = "暂不支持该链接，请发送B站视频链接（bilibili.com/video/... 或 b23.tv/...）。"

	rePromptText = "请回复数字1(TXT格式)或2(SRT格式)进行选择。"

	textReadyText = "TXT文件已准备就绪！\n\n您现在可以询问关于视频内容的任何问题，我会根据视频内容为您解答。"

	subtitleReadyText = "SRT字幕文件已准备就绪！\n\n您现在可以询问关于视频内容的任何问题，我会根据视频内容为您解答。"

	answerFailText = "抱歉，我暂时无法回答这个问题，请稍后再试。"

	internalErrText = "服务开小差了，请稍后重试。"
)
