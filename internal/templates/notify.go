package templates

const dealNotifyTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Hey {{name}},
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		{{message}}
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		<b>Deal:</b> {{title}}<br/>
		<a href="{{link}}">View the deal</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		All the best,<br/>
		~ The Pact Team<br/>
	</p>
</div>
`

var DealNotifyEmail = MustacheMust(dealNotifyTmpl)
