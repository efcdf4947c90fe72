package rules

import "github.com/klyr/appid/internal/appid"

// Built-in signature tables. Each call returns a fresh slice the caller may
// extend with operator patterns.

func ContentTypePatterns() []Pattern {
	payload := func(pattern string, id appid.ID) Pattern {
		return Pattern{Bytes: []byte(pattern), AppID: id, Payload: id, Discipline: Multiple}
	}
	return []Pattern{
		payload("quicktime", appid.QuickTime),
		payload("mpeg", appid.MPEG),
		payload("mpa", appid.MPEG),
		payload("mp4a-latm", appid.MPEG),
		payload("robust-mpa", appid.MPEG),
		payload("x-scpls", appid.MPEG),
		payload("x-shockwave-flash", appid.Shockwave),
		payload("rss+xml", appid.RSS),
		payload("atom+xml", appid.Atom),
		payload("mp4", appid.MP4),
		payload("x-ms-wmv", appid.WMV),
		payload("x-ms-wma", appid.WMA),
		payload("wav", appid.WAV),
		payload("x-wav", appid.WAV),
		payload("vnd.wav", appid.WAV),
		payload("x-flv", appid.FlashVideo),
		payload("x-m4v", appid.FlashVideo),
		payload("3gpp", appid.FlashVideo),
		payload("video/", appid.Generic),
		payload("audio/", appid.Generic),
	}
}

func ViaPatterns() []Pattern {
	return []Pattern{
		{Bytes: []byte("squid"), AppID: appid.Squid, Service: appid.Squid, Discipline: Single},
	}
}

func HostPayloadPatterns() []Pattern {
	host := func(pattern string, id appid.ID) Pattern {
		return Pattern{Bytes: []byte(pattern), AppID: id, Payload: id, Discipline: Single}
	}
	return []Pattern{
		host("myspace.com", appid.MySpace),
		host("gmail.com", appid.Gmail),
		host("mail.google.com", appid.Gmail),
		host("webmail.aol.com", appid.AOLEmail),
		host("update.microsoft.com", appid.MicrosoftUpdate),
		host("windowsupdate.com", appid.MicrosoftUpdate),
		host("mail.yahoo.com", appid.YahooMail),
		host("rd.companion.yahoo.com", appid.YahooToolbar),
		host("swupmf.adobe.com", appid.AdobeUpdate),
		host("hotmail.com", appid.Hotmail),
		host("mail.live.com", appid.Hotmail),
		host("toolbarqueries.google.com", appid.GoogleToolbar),
	}
}

func UserAgentPatterns() []Pattern {
	agent := func(pattern string, service, client appid.ID) Pattern {
		return Pattern{Bytes: []byte(pattern), AppID: client, Service: service, Client: client, Discipline: Multiple}
	}
	return []Pattern{
		agent("Version", appid.None, appid.Version),
		agent("MSIE", appid.HTTP, appid.InternetExplorer),
		agent("Konqueror", appid.HTTP, appid.Konqueror),
		agent("Skype", appid.SkypeAuth, appid.Skype),
		agent("BitTorrent", appid.BitTorrent, appid.BitTorrent),
		agent("Firefox", appid.HTTP, appid.Firefox),
		agent("Wget/", appid.HTTP, appid.Wget),
		agent("curl", appid.HTTP, appid.Curl),
		agent("Google Desktop", appid.HTTP, appid.GoogleDesktop),
		agent("Picasa", appid.HTTP, appid.Picasa),
		agent("Safari", appid.HTTP, appid.Safari),
		agent("Opera", appid.HTTP, appid.Opera),
		agent("Chrome", appid.HTTP, appid.Chrome),
		agent("Mobile", appid.HTTP, appid.SafariMobileDummy),
		agent("BlackBerry", appid.HTTP, appid.BlackBerryBrowser),
		agent("Android", appid.HTTP, appid.AndroidBrowser),
		agent("Windows-Media-Player", appid.HTTP, appid.WindowsMediaPlayer),
		agent("Maci", appid.HTTP, appid.AppleEmail),
	}
}
